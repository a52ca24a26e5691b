package version

var (
	Version    = "0.3"
	GitHash    = "devXXXX"
	BuildTS    = "2026-10-18T00:00:00Z" // to be replaced at build time
	APIVersion = "1.0"
	Model      = "SES-FAN"
	Agent      = "fantach/" + Version
	Branch     = "main"
)

type VersionConfig struct {
	Version    string `json:"Version"`
	GitHash    string `json:"GitHash"`
	BuildTS    string `json:"BuildTS"`
	APIVersion string `json:"APIVersion"`
	Model      string `json:"Model"`
	Agent      string `json:"Agent"`
	Branch     string `json:"Branch"`
}

func GetVersionConfig() VersionConfig {
	return VersionConfig{
		Version:    Version,
		GitHash:    GitHash,
		BuildTS:    BuildTS,
		APIVersion: APIVersion,
		Model:      Model,
		Agent:      Agent,
		Branch:     Branch,
	}
}

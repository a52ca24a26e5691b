package jsonrpc

import (
	"encoding/json"

	"github.com/go-errors/errors"
)

func PrepareJSONResponse(v interface{}) ([]byte, error) {
	jsonResponse, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	n := len(jsonResponse)
	if n > 0 {
		if jsonResponse[n-1] != '\n' {
			jsonResponse = append(jsonResponse, '\n')
		}
	}
	return jsonResponse, nil
}

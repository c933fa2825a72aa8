package redisutils

import (
	"encoding/json"
	"errors"
)

var (
	ErrInvalidJsonData = errors.New("supplied data was not a json encoded string")
)

// JsonTo decodes a stream field value written as a JSON string.
func JsonTo[T any](jsonData any) (T, error) {
	var t T
	jsonStr, ok := jsonData.(string)
	if !ok {
		return t, ErrInvalidJsonData
	}
	if err := json.Unmarshal([]byte(jsonStr), &t); err != nil {
		return t, ErrInvalidJsonData
	}
	return t, nil
}

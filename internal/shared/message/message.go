package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedMessage is returned for any inbound frame that cannot be turned into a
// client message: bad JSON, unknown or missing type, missing field, wrong type.
var ErrMalformedMessage = errors.New("malformed message")

type Message interface {
	Discriminable
}

type Discriminable interface {
	GetDiscriminator() string
}

var PrintTypeDiscriminator = func(i any) string {
	return reflect.TypeOf(i).String()
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// UnmarshalWrappedType reads the "type" field of data and decodes the whole object into
// the concrete message registered under it.
func UnmarshalWrappedType[T Message](data []byte, typeRegistry map[string]func() T) (T, error) {
	var zeroValue T
	var temp struct {
		TypeDiscriminator *string `json:"type"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return zeroValue, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if temp.TypeDiscriminator == nil {
		return zeroValue, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}

	constructor, ok := typeRegistry[*temp.TypeDiscriminator]
	if !ok {
		return zeroValue, fmt.Errorf("%w: unknown message type %q", ErrMalformedMessage, *temp.TypeDiscriminator)
	}
	concreteMessage := constructor()
	if err := json.Unmarshal(data, concreteMessage); err != nil {
		return zeroValue, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, *temp.TypeDiscriminator, err)
	}
	if err := validate.Struct(concreteMessage); err != nil {
		return zeroValue, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, *temp.TypeDiscriminator, err)
	}
	return concreteMessage, nil
}

// Decode turns one inbound frame into a typed client message.
func Decode(data []byte) (Message, error) {
	return UnmarshalWrappedType(data, clientMessageTypeRegistry)
}

// Encode serializes a server message. Field order follows the struct definition so the
// output is deterministic.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("cannot encode nil message")
	}
	return json.Marshal(msg)
}

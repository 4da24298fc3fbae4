package driver

import "fmt"

// rawCodec passes pre-marshaled request and response bodies through gRPC
// untouched. Marshal accepts []byte; Unmarshal fills *[]byte. The driver
// core never interprets message contents.
type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("raw codec: cannot marshal %T", v)
	}
	return b, nil
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	out, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("raw codec: cannot unmarshal into %T", v)
	}
	*out = append((*out)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return "pairdb-raw" }

package store

import (
	"fmt"

	"github.com/pairdb/hintmgr/internal/util"
	"github.com/vmihailenco/msgpack/v5"
)

// marshalRow serializes v and appends a trailing CRC32 checksum over the
// encoded bytes, so unmarshalRow can detect bit-rot or a truncated write
// independently of whatever msgpack itself manages to decode.
func marshalRow(v rowValue) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	return util.AppendChecksum(data), nil
}

func unmarshalRow(data []byte) (rowValue, error) {
	var v rowValue
	payload, ok := util.ValidateAndStripChecksum(data)
	if !ok {
		return v, fmt.Errorf("hint row failed checksum validation")
	}
	err := msgpack.Unmarshal(payload, &v)
	return v, err
}

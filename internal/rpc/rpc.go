package rpc

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/goevery/chatrelay/internal/ierr"
)

type Request struct {
	Id     int              `json:"id,omitempty"`
	Method string           `json:"method"`
	Params *json.RawMessage `json:"params,omitempty"`
}

func (r Request) ReplyExpected() bool {
	return r.Id != 0
}

func (r Request) Reply(result *json.RawMessage) Response {
	return Response{
		RequestId: r.Id,
		Result:    result,
	}
}

func (r Request) ReplyWithError(err ierr.Error) Response {
	return Response{
		RequestId: r.Id,
		Error:     &err,
	}
}

type Response struct {
	RequestId int              `json:"requestId,omitempty"`
	Result    *json.RawMessage `json:"result,omitempty"`
	Error     *ierr.Error      `json:"error,omitempty"`
}

func (r Response) IsFailure() bool {
	return r.Error != nil
}

// EncodeNotification builds a {"method","params"} frame without re-encoding params,
// so receivers get the sender's payload bytes unchanged.
func EncodeNotification(method string, params json.RawMessage) ([]byte, error) {
	if !json.Valid(params) {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("params are not valid json"))
	}

	encodedMethod, err := json.Marshal(method)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(encodedMethod) + len(params) + 24)
	buf.WriteString(`{"method":`)
	buf.Write(encodedMethod)
	buf.WriteString(`,"params":`)
	buf.Write(params)
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

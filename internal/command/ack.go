// internal/command/ack.go
package command

import "encoding/json"

// Ack is the synchronous reply to one command. It is independent of any
// broadcast the command triggers.
type Ack struct {
	OK      bool
	Code    Code
	Message string
	Data    map[string]interface{}
}

func ok(data map[string]interface{}) Ack {
	return Ack{OK: true, Data: data}
}

func fail(err *Error) Ack {
	return Ack{OK: false, Code: err.Code, Message: err.Message}
}

// Fields flattens the ack into its wire shape: {ok:true, ...data} or
// {ok:false, code, message}.
func (a Ack) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(a.Data)+3)
	if !a.OK {
		out["ok"] = false
		out["code"] = a.Code
		out["message"] = a.Message
		return out
	}
	for k, v := range a.Data {
		out[k] = v
	}
	out["ok"] = true
	return out
}

func (a Ack) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Fields())
}

package agent

import (
	"strings"

	"github.com/tidwall/gjson"
)

// response is the agent's structured output. Agents print either a single
// JSON object or, in streaming mode, an array of events whose last
// "result" event carries the answer.
type response struct {
	structured bool
	isError    bool
	result     string
	sessionID  string
	raw        string
}

func parseResponse(stdout []byte) response {
	raw := strings.TrimSpace(string(stdout))
	resp := response{raw: raw}

	if raw == "" || !gjson.Valid(raw) {
		return resp
	}

	doc := gjson.Parse(raw)
	if doc.IsArray() {
		var last gjson.Result
		doc.ForEach(func(_, event gjson.Result) bool {
			if event.Get("type").String() == "result" {
				last = event
			}
			return true
		})
		if !last.Exists() {
			return resp
		}
		doc = last
	}

	if !doc.IsObject() {
		return resp
	}

	resp.structured = true
	resp.isError = doc.Get("is_error").Bool()
	resp.result = doc.Get("result").String()
	resp.sessionID = doc.Get("session_id").String()
	return resp
}

package subsonic

import (
	"encoding/json"
	"net/http"
	"strings"
)

const (
	restVersion = "1.8.0"
	serverType  = "gazelle-subsonic"
	restXMLNS   = "http://subsonic.org/restapi"
)

// envelope wraps a payload in the common subsonic-response element.
// The payload's fields end up directly inside it.
func envelope(status string, payload *Node) *Node {
	root := newNode().
		Set("xmlns", restXMLNS).
		Set("status", status).
		Set("type", serverType).
		Set("version", restVersion)
	if payload != nil {
		root.attrs = append(root.attrs, payload.attrs...)
		root.children = append(root.children, payload.children...)
	}
	return root
}

func (s *Server) renderOK(sess *session) {
	s.render(sess, http.StatusOK, envelope("ok", sess.body))
}

func (s *Server) renderError(sess *session, serr *Error) {
	payload := newNode()
	payload.Child("error").
		Set("code", int(serr.Code)).
		Set("message", serr.Message)
	s.render(sess, serr.httpStatus(), envelope("failed", payload))
}

func (s *Server) render(sess *session, status int, root *Node) {
	switch sess.format {
	case formatJSON:
		s.writeBody(sess, status, "application/json", jsonDocument(root))
	case formatJSONP:
		body := sess.callback + "(" + string(jsonDocument(root)) + ");"
		s.writeBody(sess, status, "application/javascript", []byte(body))
	default:
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
		b.WriteByte('\n')
		root.writeXML(&b, "subsonic-response")
		s.writeBody(sess, status, "text/xml; charset=utf-8", []byte(b.String()))
	}
}

func jsonDocument(root *Node) []byte {
	doc, err := json.Marshal(map[string]any{"subsonic-response": root.jsonValue()})
	if err != nil {
		// the tree only ever holds scalars and nested maps
		panic(err)
	}
	return doc
}

func (s *Server) writeBody(sess *session, status int, contentType string, body []byte) {
	sess.w.Header().Set("Content-Type", contentType)
	sess.w.WriteHeader(status)
	if _, err := sess.w.Write(body); err != nil {
		s.log.Warn("failed to write response body", "error", err)
	}
}

package subsonic

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/welp-ops/gazelle-subsonic/internal/gazelle"
	"github.com/welp-ops/gazelle-subsonic/internal/torrents"
)

type wireFormat int

const (
	formatXML wireFormat = iota
	formatJSON
	formatJSONP
)

// session is the per-request state: parsed query, negotiated output
// format, resolved user, and the handler's response payload. The auth
// fields are read-only once validation and authentication succeed.
type session struct {
	w     http.ResponseWriter
	r     *http.Request
	query url.Values

	format   wireFormat
	callback string

	username string
	client   string
	version  string

	body      *Node
	wroteBody bool
}

// Body returns the response payload node, creating it on first use.
// A handler that never touches Body and never writes the HTTP body
// renders as not-implemented.
func (s *session) Body() *Node {
	if s.body == nil {
		s.body = newNode()
	}
	return s.body
}

// param returns the single value of a query parameter, "" when absent.
func (s *session) param(name string) string {
	return s.query.Get(name)
}

// serve runs one request through the session state machine: validate,
// authenticate, dispatch, render. Errors at any stage jump straight to
// the error rendering, unless the handler already committed the HTTP
// body, in which case the connection is simply cut short.
func (s *Server) serve(w http.ResponseWriter, r *http.Request, name string) {
	sess := &session{w: w, r: r, query: r.URL.Query()}

	err := s.process(sess, name)

	if sess.wroteBody {
		if err != nil {
			s.log.Error("failure after response body started", "endpoint", name, "error", err)
		}
		return
	}

	if err != nil {
		serr := s.asError(err)
		s.renderError(sess, serr)
		return
	}

	if sess.body == nil {
		s.renderError(sess, errNotFound("%s is not implemented", name))
		return
	}
	s.renderOK(sess)
}

func (s *Server) process(sess *session, name string) error {
	if err := s.validate(sess); err != nil {
		return err
	}
	if err := s.authenticate(sess); err != nil {
		return err
	}
	handler, ok := s.handlers[name]
	if !ok {
		return errNotFound("no such endpoint %q", name)
	}
	return handler(sess)
}

var (
	versionPattern = regexp.MustCompile(`^\d+\.\d+(\.\d+)?$`)
	tokenPattern   = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)
)

// validate checks the common protocol parameters: presence, shape, no
// duplicates, and exactly one credential mechanism.
func (s *Server) validate(sess *session) error {
	for _, name := range []string{"u", "p", "t", "s", "v", "c", "f", "callback"} {
		if len(sess.query[name]) > 1 {
			return errMissing("parameter %q must not be given more than once", name)
		}
	}

	switch sess.param("f") {
	case "", "xml":
		sess.format = formatXML
	case "json":
		sess.format = formatJSON
	case "jsonp":
		sess.format = formatJSONP
		sess.callback = sess.param("callback")
		if sess.callback == "" {
			// render the complaint in xml, echoing it into a callback
			// that was never given helps nobody
			sess.format = formatXML
			return errMissing("callback parameter is required with f=jsonp")
		}
	default:
		return errMissing("unknown response format %q", sess.param("f"))
	}

	sess.version = sess.param("v")
	if sess.version == "" {
		return errMissing("required parameter %q is missing", "v")
	}
	if !versionPattern.MatchString(sess.version) {
		return errMissing("malformed protocol version %q", sess.version)
	}

	sess.client = sess.param("c")
	if sess.client == "" {
		return errMissing("required parameter %q is missing", "c")
	}

	if sess.param("u") == "" {
		return errMissing("required parameter %q is missing", "u")
	}

	password, token, salt := sess.param("p"), sess.param("t"), sess.param("s")
	switch {
	case password != "" && token != "":
		return errMissing("parameters %q and %q are mutually exclusive", "p", "t")
	case password == "" && token == "":
		return errMissing("either %q or %q+%q credentials are required", "p", "t", "s")
	case (token == "") != (salt == ""):
		return errMissing("parameters %q and %q are required together", "t", "s")
	case token != "" && !tokenPattern.MatchString(token):
		return errMissing("parameter %q must be a 32 character hex string", "t")
	}
	return nil
}

// authenticate resolves the user with either cleartext or salted-hash
// credentials. Unknown user and wrong credentials are indistinguishable
// to the caller.
func (s *Server) authenticate(sess *session) error {
	username := sess.param("u")
	stored, known := s.cfg.Users[username]
	if !known {
		return errWrongAuth()
	}

	if p := sess.param("p"); p != "" {
		if hexed, ok := strings.CutPrefix(p, "enc:"); ok {
			raw, err := hex.DecodeString(hexed)
			if err != nil {
				return errWrongAuth()
			}
			p = string(raw)
		}
		if subtle.ConstantTimeCompare([]byte(p), []byte(stored)) != 1 {
			return errWrongAuth()
		}
	} else {
		sum := md5.Sum([]byte(stored + sess.param("s")))
		if !strings.EqualFold(hex.EncodeToString(sum[:]), sess.param("t")) {
			return errWrongAuth()
		}
	}

	sess.username = username
	return nil
}

// asError folds any handler failure into a coded protocol error. The
// expected conditions keep their code; upstream and transport failures
// are logged in full here and degraded to a generic error for the
// client.
func (s *Server) asError(err error) *Error {
	var serr *Error
	if errors.As(err, &serr) {
		return serr
	}
	if errors.Is(err, gazelle.ErrNotFound) || errors.Is(err, torrents.ErrFileNotFound) {
		return errNotFound("requested item was not found")
	}

	var upstream *gazelle.UpstreamError
	var transport *torrents.TransportError
	switch {
	case errors.As(err, &upstream):
		s.log.Error("catalog request failed", "action", upstream.Action, "message", upstream.Message)
	case errors.As(err, &transport):
		s.log.Error("torrent transport failed", "torrentId", transport.TorrentID, "error", transport.Err)
	default:
		s.log.Error("unexpected handler failure", "error", err)
	}
	return &Error{Code: CodeGeneric, Message: "internal error"}
}

package watchman

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"
)

const (
	unixSockPathTemplate = "%s/%s-state/sock"
	windowsPipeTemplate  = "\\\\.\\pipe\\watchman-%s"
)

// WatchmanCommand is a request sent to watchman as a JSON array.
type WatchmanCommand []interface{}

// WatchmanResponse is watchman's reply to a command or a unilateral
// subscription push.
type WatchmanResponse struct {
	Version         string          `json:"version,omitempty"`
	Error           string          `json:"error,omitempty"`
	Warning         string          `json:"warning,omitempty"`
	Clock           string          `json:"clock,omitempty"`
	IsFreshInstance bool            `json:"is_fresh_instance,omitempty"`
	Files           []WatchmanFile  `json:"-"`
	FilesRaw        json.RawMessage `json:"files,omitempty"`
	Root            string          `json:"root,omitempty"`
	Subscription    string          `json:"subscription,omitempty"`
	Unilateral      bool            `json:"unilateral,omitempty"`
	Log             string          `json:"log,omitempty"`
	Watch           string          `json:"watch,omitempty"`
	RelativeRoot    string          `json:"relative_path,omitempty"`
}

// UnmarshalJSON parses files either as file-info objects or, for a
// name-only query, as bare strings.
func (wr *WatchmanResponse) UnmarshalJSON(data []byte) error {
	type alias WatchmanResponse
	aux := &struct{ *alias }{alias: (*alias)(wr)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(wr.FilesRaw) == 0 {
		return nil
	}
	var files []WatchmanFile
	if err := json.Unmarshal(wr.FilesRaw, &files); err == nil {
		wr.Files = files
		return nil
	}
	var names []string
	if err := json.Unmarshal(wr.FilesRaw, &names); err == nil {
		wr.Files = make([]WatchmanFile, len(names))
		for i, name := range names {
			wr.Files[i] = WatchmanFile{Name: name}
		}
	}
	return nil
}

// WatchmanFile is a single entry in a query/subscription result.
type WatchmanFile struct {
	Name    string `json:"name"`
	Size    int64  `json:"size,omitempty"`
	Mode    int32  `json:"mode,omitempty"`
	MTimeMs int64  `json:"mtime_ms,omitempty"`
	Exists  bool   `json:"exists"`
	Type    string `json:"type,omitempty"` // "f", "d", "l"
	New     bool   `json:"new,omitempty"`
}

// Expression is a node of watchman's query expression tree:
// match/allof/anyof/not, each a JSON array with the operator as element 0.
type Expression interface{}

func MatchExpression(pattern string, wholename bool) Expression {
	if wholename {
		return []interface{}{"match", pattern, "wholename"}
	}
	return []interface{}{"match", pattern}
}

func AllOfExpression(exprs ...Expression) Expression {
	result := []interface{}{"allof"}
	for _, e := range exprs {
		result = append(result, e)
	}
	return result
}

func AnyOfExpression(exprs ...Expression) Expression {
	result := []interface{}{"anyof"}
	for _, e := range exprs {
		result = append(result, e)
	}
	return result
}

func NotExpression(expr Expression) Expression {
	return []interface{}{"not", expr}
}

// WatchmanConnection is a live connection to the watchman unix socket.
type WatchmanConnection struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

// Connect dials watchman's local socket, discovered via `watchman
// get-sockname` or the platform default location.
func Connect() (*WatchmanConnection, error) {
	sockPath, err := getWatchmanSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to find watchman socket: %w", err)
	}
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to watchman: %w", err)
	}
	return &WatchmanConnection{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}, nil
}

func (wc *WatchmanConnection) Close() error { return wc.conn.Close() }

func (wc *WatchmanConnection) Send(cmd WatchmanCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if _, err := wc.writer.Write(data); err != nil {
		return err
	}
	if err := wc.writer.WriteByte('\n'); err != nil {
		return err
	}
	return wc.writer.Flush()
}

func (wc *WatchmanConnection) Receive() (*WatchmanResponse, error) {
	line, err := wc.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	var resp WatchmanResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return &resp, fmt.Errorf("watchman error: %s", resp.Error)
	}
	return &resp, nil
}

func (wc *WatchmanConnection) SendReceive(cmd WatchmanCommand) (*WatchmanResponse, error) {
	if err := wc.Send(cmd); err != nil {
		return nil, err
	}
	return wc.Receive()
}

func getWatchmanSocket() (string, error) {
	cmd := exec.Command("watchman", "get-sockname")
	if output, err := cmd.Output(); err == nil {
		var result struct {
			Sockname string `json:"sockname"`
		}
		if err := json.Unmarshal(output, &result); err == nil && result.Sockname != "" {
			return result.Sockname, nil
		}
	}

	if runtime.GOOS == "windows" {
		return fmt.Sprintf(windowsPipeTemplate, os.Getenv("USERNAME")), nil
	}

	stateDir := os.Getenv("WATCHMAN_STATE_DIR")
	if stateDir == "" {
		stateDir = "/usr/local/var/run/watchman"
		if _, err := os.Stat(stateDir); os.IsNotExist(err) {
			stateDir = filepath.Join(os.TempDir(), ".watchman")
		}
	}

	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	return fmt.Sprintf(unixSockPathTemplate, stateDir, user), nil
}

// SubscriptionQuery is the payload of a "subscribe" command.
type SubscriptionQuery struct {
	Expression   Expression `json:"expression,omitempty"`
	Fields       []string   `json:"fields,omitempty"`
	Since        string     `json:"since,omitempty"`
	RelativeRoot string     `json:"relative_root,omitempty"`
	Empty        bool       `json:"empty_on_fresh_instance,omitempty"`
}

func (wc *WatchmanConnection) WatchProject(path string) (*WatchmanResponse, error) {
	return wc.SendReceive(WatchmanCommand{"watch-project", path})
}

func (wc *WatchmanConnection) Subscribe(root, name string, query SubscriptionQuery) (*WatchmanResponse, error) {
	return wc.SendReceive(WatchmanCommand{"subscribe", root, name, query})
}

func (wc *WatchmanConnection) Unsubscribe(root, name string) error {
	_, err := wc.SendReceive(WatchmanCommand{"unsubscribe", root, name})
	return err
}

func (wc *WatchmanConnection) Clock(root string) (string, error) {
	resp, err := wc.SendReceive(WatchmanCommand{"clock", root})
	if err != nil {
		return "", err
	}
	return resp.Clock, nil
}

func (wc *WatchmanConnection) Version() (string, error) {
	resp, err := wc.SendReceive(WatchmanCommand{"version"})
	if err != nil {
		return "", err
	}
	return resp.Version, nil
}

// FileEvent is the watcher-agnostic change notification, produced by
// either the watchman or fsnotify backend.
type FileEvent struct {
	Path    string
	Type    EventType
	IsDir   bool
	Size    int64
	ModTime time.Time
}

type EventType int

const (
	FileCreated EventType = iota
	FileModified
	FileDeleted
	FileRenamed
)

// ConvertWatchmanFile maps a watchman query/subscription file entry to a
// FileEvent.
func ConvertWatchmanFile(root string, wf WatchmanFile) FileEvent {
	event := FileEvent{
		Path:    filepath.Join(root, wf.Name),
		IsDir:   wf.Type == "d",
		Size:    wf.Size,
		ModTime: time.Unix(0, wf.MTimeMs*int64(time.Millisecond)),
	}
	switch {
	case !wf.Exists:
		event.Type = FileDeleted
	case wf.New:
		event.Type = FileCreated
	default:
		event.Type = FileModified
	}
	return event
}

package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sheinberglab/dserv/internal/logfanout"
	"github.com/sheinberglab/dserv/internal/metrics"
	"github.com/sheinberglab/dserv/internal/sendfanout"
	"github.com/sheinberglab/dserv/pkg/dpoint"
	"github.com/sheinberglab/dserv/pkg/match"
)

func portString(port int) string { return strconv.Itoa(port) }

// Dispatch parses one `%command ...` line (without its trailing newline)
// and returns the reply line to write back, without its trailing newline.
// Every branch translates to exactly one core API call (§4.10).
func (h *Hub) Dispatch(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "-1 empty command"
	}
	cmd := strings.TrimPrefix(fields[0], "%")
	args := fields[1:]

	switch cmd {
	case "version":
		return protocolVersion
	case "getkeys":
		return "1 " + h.Orch.Keys()
	case "dgdir":
		return "1 " + h.Orch.DGDir()
	case "reg":
		return h.cmdReg(args)
	case "unreg":
		return h.cmdUnreg(args)
	case "set":
		return h.cmdSet(line, args)
	case "setdata":
		return h.cmdSetData(line)
	case "get":
		return h.cmdGet(args)
	case "touch":
		return h.cmdTouch(args)
	case "clear":
		return h.cmdClear(args)
	case "getsize":
		return h.cmdGetSize(args)
	case "match":
		return h.cmdMatch(args)
	case "unmatch":
		return h.cmdUnmatch(args)
	case "getmatch":
		return h.cmdGetMatch(args)
	case "logopen":
		return h.cmdLogOpen(args)
	case "logclose":
		return h.cmdLogClose(args)
	case "logstart":
		return h.cmdLogState(args, logfanout.StateRunning)
	case "logpause":
		return h.cmdLogState(args, logfanout.StatePaused)
	case "logmatch":
		return h.cmdLogMatch(args)
	default:
		return "-1 unknown command"
	}
}

func (h *Hub) cmdReg(args []string) string {
	if len(args) < 2 {
		return "-1 usage: %reg HOST PORT [FLAGS]"
	}
	host := args[0]
	port, err := strconv.Atoi(args[1])
	if err != nil {
		return "-1 bad port"
	}
	flags := 0
	if len(args) > 2 {
		flags, _ = strconv.Atoi(args[2])
	}
	conn, err := h.Dial(host, port)
	if err != nil {
		h.Log.WithError(err).WithField("host", host).Warn("reg: dial failed")
		return "-1 dial failed"
	}
	c := sendfanout.NewClient(host, port, h.encodingFor(flags), conn, h.QueueCap, h.Log)
	h.SendTbl.Register(c)
	metrics.SendClients.Inc()
	return "1"
}

func (h *Hub) cmdUnreg(args []string) string {
	if len(args) < 2 {
		return "-1 usage: %unreg HOST PORT"
	}
	host := args[0]
	port, err := strconv.Atoi(args[1])
	if err != nil {
		return "-1 bad port"
	}
	if h.SendTbl.Unregister(host, port) {
		metrics.SendClients.Dec()
		return "1"
	}
	return "0"
}

func (h *Hub) cmdSet(line string, args []string) string {
	if len(args) < 1 {
		return "-1 usage: %set NAME=VALUE"
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, "%set"))
	idx := strings.Index(rest, "=")
	if idx < 0 {
		return "-1 usage: %set NAME=VALUE"
	}
	name := rest[:idx]
	value := rest[idx+1:]
	defer h.traceIngest(name)()
	h.Orch.Set(dpoint.NewString(name, value))
	metrics.IngestionsTotal.Inc()
	return "1"
}

func (h *Hub) cmdSetData(line string) string {
	body := strings.TrimSpace(strings.TrimPrefix(line, "%setdata"))
	dp, err := dpoint.ParseText(body)
	if err != nil {
		return "-1 " + err.Error()
	}
	defer h.traceIngest(dp.Varname)()
	h.Orch.Set(dp)
	metrics.IngestionsTotal.Inc()
	return "1"
}

func (h *Hub) cmdGet(args []string) string {
	if len(args) < 1 {
		return "-1 usage: %get NAME"
	}
	dp, ok := h.Orch.Get(args[0])
	if !ok {
		return "-1"
	}
	return "1 " + dp.SerializeText()
}

func (h *Hub) cmdTouch(args []string) string {
	if len(args) < 1 {
		return "-1 usage: %touch NAME"
	}
	if h.Orch.Touch(args[0]) {
		metrics.IngestionsTotal.Inc()
		return "1"
	}
	return "0"
}

func (h *Hub) cmdClear(args []string) string {
	if len(args) < 1 {
		return "-1 usage: %clear NAME"
	}
	if h.Orch.ClearOne(args[0]) {
		return "1"
	}
	return "0"
}

func (h *Hub) cmdGetSize(args []string) string {
	if len(args) < 1 {
		return "-1 usage: %getsize NAME"
	}
	dp, ok := h.Orch.Get(args[0])
	if !ok {
		return "-1"
	}
	return fmt.Sprintf("1 %d", dp.Len())
}

func (h *Hub) cmdMatch(args []string) string {
	if len(args) < 3 {
		return "-1 usage: %match HOST PORT PATTERN [EVERY]"
	}
	host, portStr, pattern := args[0], args[1], args[2]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "-1 bad port"
	}
	every := 1
	if len(args) > 3 {
		every, _ = strconv.Atoi(args[3])
	}
	c, ok := h.SendTbl.Find(host, port)
	if !ok {
		return "-1 no such client"
	}
	c.Matches.Insert(pattern, match.NewMatchSpecEvery(pattern, every))
	return "1"
}

func (h *Hub) cmdUnmatch(args []string) string {
	if len(args) < 3 {
		return "-1 usage: %unmatch HOST PORT PATTERN"
	}
	host, portStr, pattern := args[0], args[1], args[2]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "-1 bad port"
	}
	c, ok := h.SendTbl.Find(host, port)
	if !ok {
		return "-1 no such client"
	}
	c.Matches.Remove(pattern)
	return "1"
}

func (h *Hub) cmdGetMatch(args []string) string {
	if len(args) < 2 {
		return "-1 usage: %getmatch HOST PORT"
	}
	host, portStr := args[0], args[1]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "-1 bad port"
	}
	c, ok := h.SendTbl.Find(host, port)
	if !ok {
		return "-1 no such client"
	}
	return "1 { " + strings.Join(c.Matches.Keys(), " ") + " }"
}

func (h *Hub) cmdLogOpen(args []string) string {
	if len(args) < 1 {
		return "-1 usage: %logopen PATH [OVERWRITE]"
	}
	path := args[0]
	overwrite := len(args) > 1 && args[1] == "1"
	c, err := logfanout.Open(path, overwrite, h.Log)
	if err != nil {
		h.Log.WithError(err).WithField("path", path).Warn("logopen failed")
		return "0"
	}
	h.LogTbl.Register(c)
	metrics.LogClients.Inc()
	return "1"
}

func (h *Hub) cmdLogClose(args []string) string {
	if len(args) < 1 {
		return "-1 usage: %logclose PATH"
	}
	if h.LogTbl.Unregister(args[0]) {
		metrics.LogClients.Dec()
		return "1"
	}
	return "0"
}

func (h *Hub) cmdLogState(args []string, state logfanout.State) string {
	if len(args) < 1 {
		return "-1 usage: %logstart|%logpause PATH"
	}
	c, ok := h.LogTbl.Find(args[0])
	if !ok {
		return "0"
	}
	if state == logfanout.StateRunning {
		c.Start()
	} else {
		c.Pause()
	}
	return "1"
}

func (h *Hub) cmdLogMatch(args []string) string {
	if len(args) < 5 {
		return "-1 usage: %logmatch PATH PATTERN EVERY OBS BUFSIZE"
	}
	path, pattern := args[0], args[1]
	every, err := strconv.Atoi(args[2])
	if err != nil {
		return "-1 bad every"
	}
	obs := args[3] == "1"
	bufsize, err := strconv.Atoi(args[4])
	if err != nil {
		return "-1 bad bufsize"
	}
	c, ok := h.LogTbl.Find(path)
	if !ok {
		return "0"
	}
	c.Matches.Insert(pattern, match.NewLogMatchSpec(pattern, every, obs, bufsize))
	return "1"
}

package mock

import (
	"context"
	"strconv"
	"strings"

	"github.com/tailored-agentic-units/ipybridge/messaging"
)

// Echo language version reported in kernel_info replies.
const (
	EchoLanguage        = "python"
	EchoLanguageVersion = "3.12.1"
	EchoVersion         = "8.21.0"
)

var echoVocabulary = []string{"print", "property", "pow", "range", "repr", "return"}

// Echo answers requests roughly the way an IPython kernel would:
//
//   - "print(x)" writes x to stdout
//   - "input(p)" asks for stdin with prompt p and returns the answer
//   - "1/0" raises ZeroDivisionError
//   - "name?" returns a page payload
//   - "a+b" of integers evaluates to the sum
//   - anything else evaluates to itself
func Echo(ctx context.Context, k *Transport, req *messaging.Request) {
	switch req.Kind {
	case messaging.KindExecute:
		echoExecute(ctx, k, req)
	case messaging.KindKernelInfo:
		k.Reply(req.ID, "kernel_info_reply", messaging.KernelInfo{
			Status:                "ok",
			ProtocolVersion:       "5.3",
			Implementation:        "ipython",
			ImplementationVersion: EchoVersion,
			LanguageInfo: messaging.LanguageInfo{
				Name:          EchoLanguage,
				Version:       EchoLanguageVersion,
				FileExtension: ".py",
			},
		})
	case messaging.KindComplete:
		c, _ := req.Content.(messaging.CompleteRequest)
		k.Reply(req.ID, "complete_reply", echoComplete(c))
	case messaging.KindInspect:
		c, _ := req.Content.(messaging.InspectRequest)
		k.Reply(req.ID, "inspect_reply", echoInspect(c))
	case messaging.KindShutdown:
		k.alive.Store(false)
		k.Reply(req.ID, "shutdown_reply", messaging.ShutdownRequest{})
	case messaging.KindInterrupt:
		k.Reply(req.ID, "interrupt_reply", map[string]string{"status": "ok"})
	}
}

func echoExecute(ctx context.Context, k *Transport, req *messaging.Request) {
	c, _ := req.Content.(messaging.ExecuteRequest)
	code := strings.TrimSpace(c.Code)

	k.Broadcast("status", req.ID, messaging.Status{ExecutionState: "busy"})

	count := int(k.executions.Load())
	if !c.Silent {
		count = int(k.executions.Add(1))
		k.Broadcast("execute_input", req.ID, messaging.ExecuteInput{Code: c.Code, ExecutionCount: count})
	}

	reply := messaging.ExecuteReply{Status: "ok", ExecutionCount: count}
	result := func(text string) {
		if !c.Silent {
			k.Broadcast("execute_result", req.ID, messaging.ExecuteResult{
				ExecutionCount: count,
				Data:           messaging.MimeBundle{"text/plain": text},
			})
		}
	}
	fail := func(ename, evalue string) {
		k.Broadcast("error", req.ID, messaging.Error{
			EName:     ename,
			EValue:    evalue,
			Traceback: []string{"Traceback (most recent call last):", ename + ": " + evalue},
		})
		reply.Status = "error"
		reply.EName = ename
		reply.EValue = evalue
	}

	switch {
	case code == "":
	case call(code, "print") != "":
		k.Broadcast("stream", req.ID, messaging.Stream{Name: "stdout", Text: unquote(call(code, "print")) + "\n"})
	case strings.HasPrefix(code, "input("):
		value, err := k.RequestInput(ctx, req.ID, unquote(call(code, "input")))
		if err != nil {
			fail("KeyboardInterrupt", "")
			break
		}
		result(strconv.Quote(value))
	case code == "1/0":
		fail("ZeroDivisionError", "division by zero")
	case strings.HasSuffix(code, "?"):
		name := strings.TrimSuffix(code, "?")
		reply.Payload = []messaging.PayloadItem{{
			Source: "page",
			Data:   messaging.MimeBundle{"text/plain": "Docstring for " + name + "\n"},
		}}
	default:
		if sum, ok := addInts(code); ok {
			result(strconv.Itoa(sum))
		} else {
			result(code)
		}
	}

	k.Broadcast("status", req.ID, messaging.Status{ExecutionState: "idle"})
	k.Reply(req.ID, "execute_reply", reply)
}

func echoComplete(c messaging.CompleteRequest) messaging.CompleteReply {
	pos := min(max(c.CursorPos, 0), len(c.Code))
	start := pos
	for start > 0 && isIdent(c.Code[start-1]) {
		start--
	}
	token := c.Code[start:pos]

	matches := []string{}
	for _, w := range echoVocabulary {
		if token != "" && strings.HasPrefix(w, token) {
			matches = append(matches, w)
		}
	}
	return messaging.CompleteReply{
		Status:      "ok",
		Matches:     matches,
		CursorStart: start,
		CursorEnd:   pos,
	}
}

func echoInspect(c messaging.InspectRequest) messaging.InspectReply {
	switch c.Code {
	case "print":
		return messaging.InspectReply{
			Status: "ok",
			Found:  true,
			Data:   messaging.MimeBundle{"text/plain": "Docstring:\nprint(value, ..., sep=' ', end='\\n')"},
		}
	case "broken":
		return messaging.InspectReply{
			Status:    "error",
			EName:     "AttributeError",
			Traceback: []string{"AttributeError: broken"},
		}
	default:
		return messaging.InspectReply{Status: "ok", Found: false}
	}
}

// call returns the argument text of "name(arg)", or "".
func call(code, name string) string {
	if !strings.HasPrefix(code, name+"(") || !strings.HasSuffix(code, ")") {
		return ""
	}
	return code[len(name)+1 : len(code)-1]
}

func unquote(s string) string {
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return strings.Trim(s, `'"`)
}

func addInts(code string) (int, bool) {
	parts := strings.Split(code, "+")
	if len(parts) < 2 {
		return 0, false
	}
	sum := 0
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, false
		}
		sum += n
	}
	return sum, true
}

func isIdent(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

package analyst

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Shopify/go-lua"
	"github.com/Shopify/goluago/util"
	"github.com/tfkr-ae/furlong/domain"
)

const (
	// DefaultScriptTimeout bounds a single load or respond call of the analyst script.
	DefaultScriptTimeout = 2 * time.Second

	// hookInstructions is how many instructions run between deadline checks.
	hookInstructions = 1000
)

// restrictedGlobals are removed from the script state after the libraries are opened.
var restrictedGlobals = []string{
	"dofile", "loadfile", "load", "loadstring", "require", "collectgarbage",
	"os", "io", "package", "debug",
}

// LuaResponder answers by calling the global respond(question, history) function of a
// Lua script. The history is passed as a list of {role, content} tables. The script may
// call furlong:log(message, level) and furlong:lower/upper/contains helpers.
type LuaResponder struct {
	mu       sync.Mutex
	state    *lua.State
	fallback Responder
	logger   *slog.Logger
	timeout  time.Duration
}

// NewLuaResponder loads script and checks it defines respond. Failed calls are answered
// by fallback, which defaults to CannedResponder.
func NewLuaResponder(script string, fallback Responder, logger *slog.Logger) (*LuaResponder, error) {
	if fallback == nil {
		fallback = CannedResponder{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	responder := &LuaResponder{
		state:    lua.NewState(),
		fallback: fallback,
		logger:   logger,
		timeout:  DefaultScriptTimeout,
	}

	l := responder.state
	lua.Require(l, "_G", lua.BaseOpen, true)
	lua.Require(l, "string", lua.StringOpen, true)
	lua.Require(l, "table", lua.TableOpen, true)
	lua.Require(l, "math", lua.MathOpen, true)
	lua.Require(l, "bit32", lua.Bit32Open, true)
	l.Pop(5)
	for _, global := range restrictedGlobals {
		l.PushNil()
		l.SetGlobal(global)
	}
	responder.registerLibrary()

	release := responder.guard(context.Background())
	err := lua.DoString(l, script)
	release()
	if err != nil {
		return nil, fmt.Errorf("loading analyst script: %w", err)
	}

	l.Global("respond")
	defined := l.IsFunction(-1)
	l.Pop(1)
	if !defined {
		return nil, errors.New("analyst script does not define respond(question, history)")
	}
	return responder, nil
}

func (r *LuaResponder) registerLibrary() {
	l := r.state
	funcs := []lua.RegistryFunction{
		// log writes a message to the service log.
		//
		// @param message string The message to log.
		// @param level string (optional) DEBUG, INFO, WARN or ERROR. Defaults to INFO.
		{Name: "log", Function: func(l *lua.State) int {
			message := lua.CheckString(l, 2)
			level := strings.ToUpper(lua.OptString(l, 3, "INFO"))
			var slogLevel slog.Level
			if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
				lua.ArgumentError(l, 3, "unknown log level")
				return 0
			}
			r.logger.Log(context.Background(), slogLevel, message, "source", "analyst-script")
			return 0
		}},
		{Name: "lower", Function: func(l *lua.State) int {
			l.PushString(strings.ToLower(lua.CheckString(l, 2)))
			return 1
		}},
		{Name: "upper", Function: func(l *lua.State) int {
			l.PushString(strings.ToUpper(lua.CheckString(l, 2)))
			return 1
		}},
		// contains reports whether text contains needle, ignoring case.
		{Name: "contains", Function: func(l *lua.State) int {
			text := strings.ToLower(lua.CheckString(l, 2))
			needle := strings.ToLower(lua.CheckString(l, 3))
			l.PushBoolean(strings.Contains(text, needle))
			return 1
		}},
		// canned returns the built in answer for a question.
		{Name: "canned", Function: func(l *lua.State) int {
			answer, _ := CannedResponder{}.Respond(context.Background(), lua.CheckString(l, 2), nil)
			l.PushString(answer)
			return 1
		}},
	}

	lua.NewLibrary(l, funcs)
	l.SetGlobal("furlong")
}

// guard stops the running script once ctx is done or the timeout passes. The returned
// func removes the hook.
func (r *LuaResponder) guard(ctx context.Context) func() {
	deadline := time.Now().Add(r.timeout)
	lua.SetDebugHook(r.state, func(l *lua.State, _ lua.Debug) {
		if err := ctx.Err(); err != nil {
			lua.Errorf(l, "analyst script stopped: %s", err.Error())
		}
		if time.Now().After(deadline) {
			lua.Errorf(l, "analyst script ran longer than %s", r.timeout.String())
		}
	}, lua.MaskCount, hookInstructions)
	return func() { lua.SetDebugHook(r.state, nil, 0, 0) }
}

// Respond calls the script. Script errors, overruns and non-string results are logged and
// answered by the fallback responder.
func (r *LuaResponder) Respond(ctx context.Context, question string, history []*domain.ChatMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	answer, err := r.call(ctx, question, history)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		r.logger.Warn("analyst script failed, using fallback", "error", err)
		return r.fallback.Respond(ctx, question, history)
	}
	return answer, nil
}

func (r *LuaResponder) call(ctx context.Context, question string, history []*domain.ChatMessage) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.state
	top := l.Top()
	defer l.SetTop(top)
	defer r.guard(ctx)()

	turns := make([]any, len(history))
	for i, m := range history {
		turns[i] = map[string]any{"role": m.Role, "content": m.Content}
	}

	l.Global("respond")
	l.PushString(question)
	util.DeepPush(l, turns)
	if err := l.ProtectedCall(2, 1, 0); err != nil {
		return "", fmt.Errorf("calling respond: %w", err)
	}

	if l.TypeOf(-1) != lua.TypeString {
		return "", fmt.Errorf("respond returned %s, wanted string", lua.TypeNameOf(l, -1))
	}
	answer, _ := l.ToString(-1)
	if strings.TrimSpace(answer) == "" {
		return "", errors.New("respond returned an empty answer")
	}
	return answer, nil
}

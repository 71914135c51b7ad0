package builtin

import (
	"encoding/json"
	"strings"

	"github.com/Shopify/go-lua"
)

// setupSandbox loads only the safe parts of the Lua standard library and
// strips out everything that can touch the process or filesystem.
func setupSandbox(l *lua.State) {
	lua.Require(l, "_G", lua.BaseOpen, true)
	l.Pop(1)
	lua.Require(l, "string", lua.StringOpen, true)
	l.Pop(1)
	lua.Require(l, "table", lua.TableOpen, true)
	l.Pop(1)
	lua.Require(l, "math", lua.MathOpen, true)
	l.Pop(1)

	// os keeps only clock/date/time
	lua.Require(l, "os", lua.OSOpen, true)
	l.Pop(1)
	l.Global("os")
	for _, name := range []string{"execute", "exit", "getenv", "remove", "rename", "setlocale", "tmpname"} {
		l.PushNil()
		l.SetField(-2, name)
	}
	l.Pop(1)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		l.PushNil()
		l.SetGlobal(name)
	}

	l.Register("json_encode", luaJSONEncode)
	l.Register("json_decode", luaJSONDecode)
	l.Register("str_trim", luaStrTrim)
	l.Register("str_split", luaStrSplit)
	l.Register("str_contains", luaStrContains)
}

// pushValue converts a Go value to Lua.
func pushValue(l *lua.State, v any) {
	switch val := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(val)
	case int:
		l.PushInteger(val)
	case int64:
		l.PushInteger(int(val))
	case float64:
		l.PushNumber(val)
	case string:
		l.PushString(val)
	case []any:
		l.NewTable()
		for i, item := range val {
			l.PushInteger(i + 1)
			pushValue(l, item)
			l.SetTable(-3)
		}
	case map[string]any:
		l.NewTable()
		for k, v := range val {
			l.PushString(k)
			pushValue(l, v)
			l.SetTable(-3)
		}
	default:
		if data, err := json.Marshal(val); err == nil {
			l.PushString(string(data))
		} else {
			l.PushNil()
		}
	}
}

// pullValue converts a Lua value to Go.
func pullValue(l *lua.State, idx int) any {
	switch l.TypeOf(idx) {
	case lua.TypeNil:
		return nil
	case lua.TypeBoolean:
		return l.ToBoolean(idx)
	case lua.TypeNumber:
		n, _ := l.ToNumber(idx)
		return n
	case lua.TypeString:
		s, _ := l.ToString(idx)
		return s
	case lua.TypeTable:
		l.PushValue(idx)

		// A table with only integer keys comes back as a slice.
		isArray := true
		maxIndex := 0

		l.PushNil()
		for l.Next(-2) {
			if l.TypeOf(-2) != lua.TypeNumber {
				isArray = false
				l.Pop(2)
				break
			}
			n, _ := l.ToNumber(-2)
			if i := int(n); i > maxIndex {
				maxIndex = i
			}
			l.Pop(1)
		}

		if isArray && maxIndex > 0 {
			arr := make([]any, maxIndex)
			for i := 1; i <= maxIndex; i++ {
				l.PushInteger(i)
				l.Table(-2)
				arr[i-1] = pullValue(l, -1)
				l.Pop(1)
			}
			l.Pop(1)
			return arr
		}

		obj := make(map[string]any)
		l.PushNil()
		for l.Next(-2) {
			key, _ := l.ToString(-2)
			obj[key] = pullValue(l, -1)
			l.Pop(1)
		}
		l.Pop(1)
		return obj
	default:
		return nil
	}
}

func luaJSONEncode(l *lua.State) int {
	value := pullValue(l, 1)
	data, err := json.Marshal(value)
	if err != nil {
		l.PushNil()
		l.PushString(err.Error())
		return 2
	}
	l.PushString(string(data))
	return 1
}

func luaJSONDecode(l *lua.State) int {
	str := lua.CheckString(l, 1)
	var value any
	if err := json.Unmarshal([]byte(str), &value); err != nil {
		l.PushNil()
		l.PushString(err.Error())
		return 2
	}
	pushValue(l, value)
	return 1
}

func luaStrTrim(l *lua.State) int {
	str := lua.CheckString(l, 1)
	l.PushString(strings.TrimSpace(str))
	return 1
}

func luaStrSplit(l *lua.State) int {
	str := lua.CheckString(l, 1)
	sep := lua.CheckString(l, 2)

	l.NewTable()
	for i, part := range strings.Split(str, sep) {
		l.PushInteger(i + 1)
		l.PushString(part)
		l.SetTable(-3)
	}
	return 1
}

func luaStrContains(l *lua.State) int {
	str := lua.CheckString(l, 1)
	substr := lua.CheckString(l, 2)
	l.PushBoolean(strings.Contains(str, substr))
	return 1
}

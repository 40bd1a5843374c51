package builtin

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Func computes a dynamic value from its arguments.
type Func func(args []string) (string, error)

type Registry struct {
	funcs map[string]Func
	now   func() time.Time
}

func NewRegistry() *Registry {
	r := &Registry{
		funcs: make(map[string]Func),
		now:   time.Now,
	}
	r.registerDefaults()
	return r
}

func (r *Registry) registerDefaults() {
	r.funcs["uuid"] = funcUUID
	r.funcs["guid"] = funcUUID
	r.funcs["timestamp"] = r.funcTimestamp
	r.funcs["timestampMs"] = r.funcTimestampMs
	r.funcs["isoTimestamp"] = r.funcISOTimestamp
	r.funcs["datetime"] = r.funcDatetime
	r.funcs["randomInt"] = funcRandomInt
	r.funcs["randomString"] = funcRandomString
	r.funcs["randomEmail"] = funcRandomEmail
	r.funcs["processEnv"] = funcProcessEnv
	r.funcs["base64"] = funcBase64
	r.funcs["base64Decode"] = funcBase64Decode
	r.funcs["md5"] = funcMD5
	r.funcs["sha256"] = funcSHA256
	r.funcs["urlEncode"] = funcURLEncode
}

func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Names lists the registered functions in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	callPattern    = regexp.MustCompile(`^(\w+)\((.*)\)$`)
	commandPattern = regexp.MustCompile(`^(\w+)(?:\s+(.*))?$`)
)

// Call evaluates an expression without its leading $. Both the call form
// "randomInt(1, 10)" and the command form "randomInt 1 10" are accepted.
// The second result is false when no function of that name exists.
func (r *Registry) Call(expr string) (string, bool, error) {
	expr = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(expr), "$"))

	var name string
	var args []string
	if m := callPattern.FindStringSubmatch(expr); m != nil {
		name = m[1]
		if m[2] != "" {
			args = parseArgs(m[2])
		}
	} else if m := commandPattern.FindStringSubmatch(expr); m != nil {
		name = m[1]
		args = strings.Fields(m[2])
	} else {
		return "", false, nil
	}

	fn, ok := r.funcs[name]
	if !ok {
		return "", false, nil
	}
	out, err := fn(args)
	if err != nil {
		return "", true, fmt.Errorf("$%s: %w", name, err)
	}
	return out, true, nil
}

func parseArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !inQuote && (ch == '"' || ch == '\'') {
			inQuote = true
			quoteChar = ch
		} else if inQuote && ch == quoteChar {
			inQuote = false
			quoteChar = 0
		} else if !inQuote && ch == ',' {
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		} else {
			current.WriteByte(ch)
		}
	}

	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}

	return args
}

func funcUUID(_ []string) (string, error) {
	return uuid.NewString(), nil
}

func (r *Registry) funcTimestamp(_ []string) (string, error) {
	return strconv.FormatInt(r.now().Unix(), 10), nil
}

func (r *Registry) funcTimestampMs(_ []string) (string, error) {
	return strconv.FormatInt(r.now().UnixMilli(), 10), nil
}

func (r *Registry) funcISOTimestamp(_ []string) (string, error) {
	return r.now().UTC().Format(time.RFC3339), nil
}

var datetimeLayouts = map[string]string{
	"iso8601": time.RFC3339,
	"rfc1123": time.RFC1123,
	"date":    "2006-01-02",
}

func (r *Registry) funcDatetime(args []string) (string, error) {
	layout := time.RFC3339
	if len(args) > 0 {
		layout = strings.Join(args, " ")
		if named, ok := datetimeLayouts[strings.ToLower(layout)]; ok {
			layout = named
		}
	}
	return r.now().UTC().Format(layout), nil
}

func funcRandomInt(args []string) (string, error) {
	lo, hi := 0, 1000
	if len(args) >= 2 {
		var err error
		if lo, err = strconv.Atoi(args[0]); err != nil {
			return "", fmt.Errorf("min %q is not an integer", args[0])
		}
		if hi, err = strconv.Atoi(args[1]); err != nil {
			return "", fmt.Errorf("max %q is not an integer", args[1])
		}
	}
	if hi < lo {
		return "", fmt.Errorf("max %d is below min %d", hi, lo)
	}
	return strconv.Itoa(rand.IntN(hi-lo+1) + lo), nil
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func funcRandomString(args []string) (string, error) {
	length := 16
	if len(args) >= 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			return "", fmt.Errorf("length %q is not a valid integer", args[0])
		}
		length = v
	}
	return randomString(length, alphanumeric), nil
}

func funcRandomEmail(_ []string) (string, error) {
	user := randomString(8, "abcdefghijklmnopqrstuvwxyz")
	domain := randomString(6, "abcdefghijklmnopqrstuvwxyz")
	return fmt.Sprintf("%s@%s.com", user, domain), nil
}

func funcProcessEnv(args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("variable name required")
	}
	value, ok := os.LookupEnv(args[0])
	if !ok {
		return "", fmt.Errorf("environment variable %s is not set", args[0])
	}
	return value, nil
}

func funcBase64(args []string) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte(strings.Join(args, " "))), nil
}

func funcBase64Decode(args []string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.Join(args, ""))
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func funcMD5(args []string) (string, error) {
	hash := md5.Sum([]byte(strings.Join(args, " ")))
	return hex.EncodeToString(hash[:]), nil
}

func funcSHA256(args []string) (string, error) {
	hash := sha256.Sum256([]byte(strings.Join(args, " ")))
	return hex.EncodeToString(hash[:]), nil
}

func funcURLEncode(args []string) (string, error) {
	return url.QueryEscape(strings.Join(args, " ")), nil
}

func randomString(length int, charset string) string {
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		result[i] = charset[rand.IntN(len(charset))]
	}
	return string(result)
}

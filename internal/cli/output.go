package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mcoot/relaygate/internal/api/response"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to stdout
func NewOutput(format string) *Output {
	return &Output{format: format, w: os.Stdout}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		o.printJSON(map[string]string{"message": msg})
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.Status:
		o.printStatus(v)
	case response.User:
		o.printUser(v)
	case response.UsersResponse:
		for _, u := range v.Users {
			o.printUser(u)
			fmt.Fprintln(o.w)
		}
	case response.SessionsResponse:
		o.printSessions(v)
	case HealthResult:
		fmt.Fprintf(o.w, "Status: %s\n", v.Status)
	case KeyPairResult:
		fmt.Fprintf(o.w, "Public key: %s\n", v.PublicKey)
		fmt.Fprintf(o.w, "Secret key: %s\n", v.SecretKey)
	case TokenResult:
		fmt.Fprintln(o.w, v.Token)
	case ProbeResult:
		o.printProbe(v)
	default:
		o.printJSON(data)
	}
}

// HealthResult response type
type HealthResult struct {
	Status string `json:"status"`
}

// KeyPairResult is a freshly generated server key pair
type KeyPairResult struct {
	PublicKey string `json:"public_key"`
	SecretKey string `json:"secret_key"`
}

// TokenResult is an issued login token
type TokenResult struct {
	Token string `json:"token"`
}

// ProbeResult describes a relay as seen by a connecting client
type ProbeResult struct {
	Addr        string        `json:"addr"`
	PlayerCount uint32        `json:"player_count"`
	Latency     time.Duration `json:"latency_ns"`
	ServerKey   string        `json:"server_public_key,omitempty"`
	Protocol    uint16        `json:"protocol_version,omitempty"`
	Error       string        `json:"error,omitempty"`
}

func (o *Output) printStatus(s response.Status) {
	fmt.Fprintf(o.w, "Players online: %d (global room %d)\n", s.PlayerCount, s.GlobalRoom)
	fmt.Fprintf(o.w, "Connections: %d\n", s.Sessions)
	fmt.Fprintf(o.w, "Protocol: %d\n", s.ProtocolLevel)
	fmt.Fprintf(o.w, "TPS: %d\n", s.TPS)
	fmt.Fprintf(o.w, "Maintenance: %s\n", yesNo(s.Maintenance))
	fmt.Fprintf(o.w, "Whitelist: %s\n", yesNo(s.Whitelist))
	fmt.Fprintf(o.w, "Standalone: %s\n", yesNo(s.Standalone))
	fmt.Fprintf(o.w, "Server key: %s\n", s.ServerKey)
}

func (o *Output) printUser(u response.User) {
	fmt.Fprintf(o.w, "Account: %d", u.AccountID)
	if u.UserName != "" {
		fmt.Fprintf(o.w, " (%s)", u.UserName)
	}
	if u.Online {
		fmt.Fprint(o.w, " [online]")
	}
	fmt.Fprintln(o.w)

	if len(u.UserRoles) > 0 {
		fmt.Fprintf(o.w, "Roles: %s\n", strings.Join(u.UserRoles, ", "))
	}
	if u.IsBanned {
		fmt.Fprintf(o.w, "Banned: %s", u.ViolationReason)
		if u.ViolationExpiry > 0 {
			fmt.Fprintf(o.w, " (until %s)", time.Unix(u.ViolationExpiry, 0).UTC().Format(time.RFC3339))
		}
		fmt.Fprintln(o.w)
	}
	if u.IsMuted {
		fmt.Fprintln(o.w, "Muted")
	}
	if u.IsWhitelisted {
		fmt.Fprintln(o.w, "Whitelisted")
	}
}

func (o *Output) printSessions(r response.SessionsResponse) {
	fmt.Fprintf(o.w, "Sessions (%d):\n", len(r.Sessions))
	for _, s := range r.Sessions {
		line := fmt.Sprintf("  - %s %s [%s]", s.ID, s.Addr, s.State)
		if s.AccountID != 0 {
			line += fmt.Sprintf(" account %d", s.AccountID)
			if s.Name != "" {
				line += " (" + s.Name + ")"
			}
		}
		fmt.Fprintln(o.w, line)
	}
}

func (o *Output) printProbe(p ProbeResult) {
	fmt.Fprintf(o.w, "Relay: %s\n", p.Addr)
	fmt.Fprintf(o.w, "Players online: %d\n", p.PlayerCount)
	fmt.Fprintf(o.w, "Latency: %s\n", p.Latency)
	if p.ServerKey != "" {
		fmt.Fprintf(o.w, "Server key: %s\n", p.ServerKey)
	}
	if p.Protocol != 0 {
		fmt.Fprintf(o.w, "Server protocol: %d\n", p.Protocol)
	}
	if p.Error != "" {
		fmt.Fprintf(o.w, "Handshake: %s\n", p.Error)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

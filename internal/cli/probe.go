package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/relaygate/internal/cryptobox"
	"github.com/mcoot/relaygate/internal/protocol"
	"github.com/mcoot/relaygate/internal/transport"
)

func newProbeCmd() *cobra.Command {
	var (
		version uint16
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe <addr>",
		Short: "Ping a relay and run a crypto handshake against it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := probe(ctx, args[0], version)
			if err != nil {
				return err
			}
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().Uint16Var(&version, "protocol", protocol.VersionProbe, "Protocol version to offer")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Overall probe timeout")

	return cmd
}

// probe pings addr and then handshakes with version. A rejected version is
// reported in the result rather than as an error.
func probe(ctx context.Context, addr string, version uint16) (ProbeResult, error) {
	result := ProbeResult{Addr: addr}

	c, err := transport.Dial(ctx, addr)
	if err != nil {
		return result, err
	}
	defer func() { _ = c.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.SetDeadline(deadline); err != nil {
			return result, err
		}
	}

	start := time.Now()
	pong, err := c.Ping(uint32(start.UnixNano()))
	if err != nil {
		return result, err
	}
	result.Latency = time.Since(start)
	result.PlayerCount = pong.PlayerCount

	key, err := c.Handshake(version)
	switch {
	case err == nil:
		result.ServerKey = cryptobox.EncodeKey(key)
		if version != protocol.VersionProbe {
			result.Protocol = version
		}
	case errors.Is(err, transport.ErrProtocolMismatch):
		result.Error = err.Error()
	default:
		return result, err
	}
	return result, nil
}

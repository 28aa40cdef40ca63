package terminalbroker

import (
	"context"

	"k8s.io/client-go/tools/remotecommand"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/clustergateway"
)

// GatewayExecOpener adapts clustergateway.Gateway.Exec — which exposes
// separate Stdin/Stdout/Resize handles — to the single ExecChannel
// this package bridges a client stream to.
type GatewayExecOpener struct {
	Gateway *clustergateway.Gateway
}

// Exec opens a real exec channel via the Cluster Gateway.
func (g *GatewayExecOpener) Exec(ctx context.Context, namespace, pod, container string, argv []string, tty bool) (ExecChannel, error) {
	session, err := g.Gateway.Exec(ctx, namespace, pod, container, argv, tty)
	if err != nil {
		return nil, err
	}
	return &execChannelAdapter{session: session}, nil
}

type execChannelAdapter struct {
	session *clustergateway.ExecSession
}

func (a *execChannelAdapter) Write(p []byte) (int, error) { return a.session.Stdin.Write(p) }
func (a *execChannelAdapter) Read(p []byte) (int, error)  { return a.session.Stdout.Read(p) }

func (a *execChannelAdapter) Resize(rows, cols uint16) {
	select {
	case a.session.Resize <- remotecommand.TerminalSize{Width: cols, Height: rows}:
	default:
	}
}

func (a *execChannelAdapter) Close() error {
	return a.session.Stdin.Close()
}

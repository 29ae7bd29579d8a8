package engine

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/quantfarm/crossarb/internal/domain"
)

// Escalator is consulted when one leg of a paired order has exhausted its
// retries: keep retrying, or stop and unwind any stray filled leg. The
// answer must arrive within the caller's deadline; silence means no.
type Escalator interface {
	KeepRetrying(ctx context.Context, legErr *domain.LegError) bool
}

// AutoDecline always answers no, so exhausted legs are unwound
// immediately. This is the right policy for unattended operation.
type AutoDecline struct{}

func (AutoDecline) KeepRetrying(context.Context, *domain.LegError) bool { return false }

// PromptEscalator asks the operator on an interactive stream and defaults
// to no after a timeout. The prompt's answer only matters for the leg it
// was asked about; stale answers after the deadline are discarded.
type PromptEscalator struct {
	In      io.Reader
	Out     io.Writer
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewPromptEscalator creates a PromptEscalator reading from in.
func NewPromptEscalator(in io.Reader, out io.Writer, timeout time.Duration, logger *slog.Logger) *PromptEscalator {
	return &PromptEscalator{
		In:      in,
		Out:     out,
		Timeout: timeout,
		Logger:  logger.With(slog.String("component", "escalator")),
	}
}

// KeepRetrying implements Escalator.
func (p *PromptEscalator) KeepRetrying(ctx context.Context, legErr *domain.LegError) bool {
	io.WriteString(p.Out, legErr.Error()+"\nkeep retrying this leg? [y/N]: ")

	answers := make(chan bool, 1)
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		if err != nil {
			answers <- false
			return
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		answers <- answer == "y" || answer == "yes"
	}()

	select {
	case <-ctx.Done():
		return false
	case answer := <-answers:
		return answer
	case <-time.After(p.Timeout):
		p.Logger.Warn("escalation prompt timed out, declining",
			slog.String("symbol", legErr.Symbol.String()),
			slog.String("venue", string(legErr.Venue)),
		)
		return false
	}
}

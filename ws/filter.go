package ws

import (
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/hashicorp/go-hclog"

	"github.com/karaokehub/karaokehub/filter"
)

func compileFilter(src string, logger hclog.Logger) *vm.Program {
	if src == "" {
		return nil
	}
	prog, err := expr.Compile(src, expr.Env(filter.Env{}))
	if err != nil {
		logger.Error("could not compile audience filter", "filter", src, "error", err)
		return nil
	}
	return prog
}

// runFilter decides whether an outbound message reaches this client. A nil
// program passes everything.
func (c *Client) runFilter(msg *OutMessage, prog *vm.Program) bool {
	if prog == nil {
		return true
	}
	env := filter.Env{
		Room: filter.Room{
			Id:      c.hub.Room.Id,
			OwnerId: c.hub.Room.OwnerId,
		},
		Target: filter.User{
			Id:      c.claims.UserId,
			Name:    c.claims.Name,
			IsAdmin: c.claims.IsAdmin,
			IsGuest: c.claims.IsGuest,
		},
	}
	if msg.Sender != nil {
		env.Sender = filter.User{
			Id:      msg.Sender.UserId,
			Name:    msg.Sender.Name,
			IsAdmin: msg.Sender.IsAdmin,
			IsGuest: msg.Sender.IsGuest,
		}
	}
	res, err := expr.Run(prog, env)
	if err != nil {
		c.hub.logger.Error("could not run audience filter", "error", err)
		return false
	}
	bRes, ok := res.(bool)
	return ok && bRes
}

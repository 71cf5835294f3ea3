package simulate

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/QuangTung97/council-election/paxos"
	"github.com/QuangTung97/council-election/transport"
)

// Options configures a simulated council. Zero values fall back to
// the reference deployment: the nine member roster, the reference
// fault profiles with a time-seeded source, stdout logging, and
// kernel-assigned loopback ports.
type Options struct {
	Config paxos.Config

	// BasePort, when non-zero, binds member Mi to 127.0.0.1:BasePort+i.
	BasePort int

	NewFault  func(id paxos.MemberID) paxos.FaultPolicy
	NewLogger func(id paxos.MemberID) paxos.EventLogger
}

func (o Options) withDefaults() Options {
	if o.Config.Members == nil {
		o.Config = paxos.DefaultConfig()
	}
	if o.NewFault == nil {
		o.NewFault = func(id paxos.MemberID) paxos.FaultPolicy {
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			return paxos.ProfileFor(id, rng)
		}
	}
	if o.NewLogger == nil {
		logger := paxos.NewStdEventLogger()
		o.NewLogger = func(id paxos.MemberID) paxos.EventLogger {
			return logger
		}
	}
	return o
}

// Cluster wires a full council over loopback TCP: one inbox server,
// sender, and member per roster entry.
type Cluster struct {
	config  paxos.Config
	members map[paxos.MemberID]*paxos.Member
	servers map[paxos.MemberID]*transport.Server

	cancel func()
	wg     sync.WaitGroup
}

// NewCluster binds every member's endpoint. Nothing is served until
// Start is called.
func NewCluster(opts Options) (*Cluster, error) {
	opts = opts.withDefaults()

	c := &Cluster{
		config:  opts.Config,
		members: map[paxos.MemberID]*paxos.Member{},
		servers: map[paxos.MemberID]*transport.Server{},
	}

	peers := map[paxos.MemberID]string{}

	for _, id := range c.config.Members {
		addr := "127.0.0.1:0"
		if opts.BasePort > 0 {
			addr = fmt.Sprintf("127.0.0.1:%d", opts.BasePort+id.Number())
		}

		server, err := transport.NewServer(addr)
		if err != nil {
			c.closeServers()
			return nil, err
		}
		c.servers[id] = server
		peers[id] = server.Addr()
	}

	for _, id := range c.config.Members {
		sender := transport.NewSender(id, peers)
		c.members[id] = paxos.NewMember(
			id, c.config, sender, opts.NewFault(id), opts.NewLogger(id),
		)
	}

	return c, nil
}

// Start serves every member's inbox.
func (c *Cluster) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	for _, id := range c.config.Members {
		server := c.servers[id]
		member := c.members[id]

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			server.Serve(ctx, member)
		}()
	}
}

func (c *Cluster) Member(id paxos.MemberID) *paxos.Member {
	return c.members[id]
}

func (c *Cluster) Members() []*paxos.Member {
	result := make([]*paxos.Member, 0, len(c.config.Members))
	for _, id := range c.config.Members {
		result = append(result, c.members[id])
	}
	return result
}

// Shutdown stops all inbox servers and waits for in-flight handlers.
func (c *Cluster) Shutdown() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Cluster) closeServers() {
	for _, server := range c.servers {
		_ = server.Close()
	}
}

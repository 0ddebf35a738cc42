package sh

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/sensorswarm/swarm.go/pkg/link/frame"
	"github.com/sensorswarm/swarm.go/pkg/node"
)

// Shell provides the ishell backed interactive console of a node.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell *ishell.Shell
	Node  *node.Node
	Ctx   context.Context
}

const shellKey = "$shell"

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&SendCmd,
		&TextCmd,
		&BcastCmd,
		&PollCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell over a running node.
func New(ctx context.Context, n *node.Node) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell: ishell.New(),
		Node:  n,
		Ctx:   ctx,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(fmt.Sprintf("[%04x] > ", n.Settings.NodeID))
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// ParsePeer parses a hex node id argument.
func ParsePeer(arg string) (frame.NodeID, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(arg, "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q", arg)
	}
	return frame.NodeID(v), nil
}

// PrintJSON prints v as one JSON line.
func PrintJSON(c *ishell.Context, v interface{}) {
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(string(out))
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func (s *Shell) send(c *ishell.Context, peer frame.NodeID, payload []byte) {
	var err error
	if peer == frame.Broadcast {
		err = s.Node.Engine.Broadcast(s.Ctx, payload)
	} else {
		err = s.Node.Engine.Send(s.Ctx, peer, payload)
	}
	if err != nil {
		c.Err(err)
		return
	}
	c.Println("OK")
}

var (
	// SendCmd sends a hex payload to a peer.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "PEER HEX",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("PEER and HEX required"))
				return
			}
			peer, err := ParsePeer(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			payload, err := hex.DecodeString(strings.Join(c.Args[1:], ""))
			if err != nil {
				c.Err(fmt.Errorf("invalid HEX: %v", err))
				return
			}
			ShellFrom(c).send(c, peer, payload)
		},
	}

	// TextCmd sends a text payload to a peer.
	TextCmd = ishell.Cmd{
		Name:    "text",
		Aliases: []string{"t"},
		Help:    "PEER WORDS...",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("PEER and WORDS required"))
				return
			}
			peer, err := ParsePeer(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			ShellFrom(c).send(c, peer, []byte(strings.Join(c.Args[1:], " ")))
		},
	}

	// BcastCmd broadcasts a hex payload.
	BcastCmd = ishell.Cmd{
		Name:    "bcast",
		Aliases: []string{"b"},
		Help:    "HEX",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("HEX required"))
				return
			}
			payload, err := hex.DecodeString(strings.Join(c.Args, ""))
			if err != nil {
				c.Err(fmt.Errorf("invalid HEX: %v", err))
				return
			}
			ShellFrom(c).send(c, frame.Broadcast, payload)
		},
	}

	// PollCmd drains pending deliveries.
	PollCmd = ishell.Cmd{
		Name:    "poll",
		Aliases: []string{"p"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			count := 0
			for {
				peer, payload, ok := s.Node.Engine.PollReceived()
				if !ok {
					break
				}
				count++
				if s.OutputJSON {
					PrintJSON(c, map[string]interface{}{
						"peer":    fmt.Sprintf("%04x", uint16(peer)),
						"payload": hex.EncodeToString(payload),
					})
					continue
				}
				c.Printf("%04x: %s\n", uint16(peer), hex.EncodeToString(payload))
			}
			if count == 0 && !s.OutputJSON {
				c.Println("no pending deliveries")
			}
		},
	}
)

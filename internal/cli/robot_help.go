package cli

import (
	"fmt"
	"io"
)

func printRobotHelp(w io.Writer) {
	if w == nil {
		return
	}

	// keep: concise; copy-pasteable commands; stable section names
	fmt.Fprint(w, `Berth Robot Help

Purpose
- supervise local IPFS (kubo) daemons: locate binary, init repo, start,
  stop, configure, connect peers
- multi-node registry: every command takes an optional node name/ID

Quick Start
1) berth up                      # registers node "main", inits ~/.ipfs, starts daemon
2) berth ps
3) berth logs -f
4) berth down

Nodes
- berth init <name> [--repo DIR] [--api MULTIADDR] [--binary PATH]
- berth up <name> [-t 90s] [--skip-peers]
- berth down <name|--all> [-t 30s]
- berth rm <name> [--force]
- berth use <name>               # default node for later commands

Peers
- berth peers fetch [--url URL]
- berth peers connect [addr] [node]
- berth peers bootstrap [addr] [node]

Config
- berth config api <multiaddr> [node]
- berth config show

Events
- berth events [--since 2h] [--type daemon.started] [--node NAME]
- berth events -f --jsonl
- berth events prune --older-than 30d

Automation / scripting
- add --json / --jsonl for machine output on most commands
- berth surface prints the full command manifest as JSON
`)
}

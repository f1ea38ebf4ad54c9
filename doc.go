// Package convoy is a declarative multi-agent conversational runtime.
//
// A bot package is a single YAML file describing a set of named agents —
// flow agents (explicit step-by-step dialogue scripts), LLM agents
// (single-prompt responders), a knowledge-base agent (retrieval over a
// vector store), and ensemble agents (LLM-driven delegation among the
// others) — plus the language models and tools they use.
//
// # Quick Start
//
//	entry_point: greeter
//	agents:
//	  greeter:
//	    type: flow agent
//	    main: main
//	    subflows:
//	      main:
//	        - kind: bot
//	          bot: "Hello! How can I help?"
//
// Validate and run it:
//
//	convo validate my-bot.yaml
//	convo chat my-bot.yaml
//
// # As a Go library
//
// Import the assembler and session packages directly:
//
//	import (
//	    "github.com/kpflow/convoy/bot"
//	    "github.com/kpflow/convoy/session"
//	)
//
// # Architecture
//
// A bot-package file is loaded and validated (package bot), assembled
// into a live graph of agents sharing a model registry and tool caller
// (bot.Assembler), and installed into a session.Manager that drives one
// turn per HandleMessage call against a per-session tracker of
// conversation state (package tracker) and scheduler (package
// scheduler).
package convoy

// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// atconsole is an interactive REPL for issuing AT commands (and a handful
// of typed conveniences) to a modem, for exploration and debugging.
//
// Lines are tokenized with shlex, so quoted arguments may contain spaces,
// e.g.:
//
//	> sms +12345 "hello there"
//	> AT+CSQ
//	> quit
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/cellmodem/engine/gsm"
	"github.com/cellmodem/engine/serial"
	"github.com/cellmodem/engine/trace"
)

func main() {
	dev := flag.String("d", "/dev/ttyUSB0", "path to modem device")
	baud := flag.Int("b", 115200, "baud rate")
	timeout := flag.Duration("t", 5*time.Second, "command timeout period")
	verbose := flag.Bool("v", false, "log modem interactions")
	flag.Parse()

	m, err := serial.New(serial.WithPort(*dev), serial.WithBaud(*baud))
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()
	var mio io.ReadWriter = m
	if *verbose {
		mio = trace.New(m, log.New(os.Stderr, "", log.LstdFlags))
	}
	g := gsm.New(mio)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	err = g.Init(ctx)
	cancel()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("connected - type 'help' for the command list, 'quit' to exit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		args, err := shlex.Split(line)
		if err != nil {
			fmt.Println("parse error:", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if !dispatch(g, *timeout, args) {
			return
		}
	}
}

// dispatch runs one tokenized console line, returning false if the console
// should exit.
func dispatch(g *gsm.GSM, timeout time.Duration, args []string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	switch strings.ToLower(args[0]) {
	case "quit", "exit":
		return false
	case "help":
		printHelp()
	case "sms":
		if len(args) < 3 {
			fmt.Println("usage: sms <number> <message>")
			return true
		}
		mr, err := g.SendSMS(ctx, args[1], strings.Join(args[2:], " "))
		report(mr, err)
	case "ussd":
		if len(args) < 2 {
			fmt.Println("usage: ussd <code>")
			return true
		}
		rsp, err := g.RunUSSD(ctx, args[1], 15)
		report(rsp, err)
	case "dial":
		if len(args) < 2 {
			fmt.Println("usage: dial <number>")
			return true
		}
		err := g.StartCall(ctx, args[1])
		report("", err)
	case "hangup":
		err := g.HangUp(ctx)
		report("", err)
	case "signal":
		dBm, err := g.SignalStrength(ctx)
		report(strconv.Itoa(dBm), err)
	default:
		// anything else is treated as a raw AT command line, minus any
		// leading "AT" the user typed.
		cmd := strings.Join(args, " ")
		if u := strings.ToUpper(cmd); strings.HasPrefix(u, "AT") {
			cmd = cmd[2:]
		}
		lines, err := g.Command(ctx, cmd)
		if err != nil {
			fmt.Println(err)
			return true
		}
		for _, l := range lines {
			fmt.Println(l)
		}
	}
	return true
}

func report(rsp string, err error) {
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if rsp != "" {
		fmt.Println(rsp)
	} else {
		fmt.Println("OK")
	}
}

func printHelp() {
	fmt.Println(`commands:
  sms <number> <message>   send an SMS
  ussd <code>               send a USSD code, e.g. ussd *101#
  dial <number>             place a voice call
  hangup                    end the active call
  signal                    read signal strength
  AT...                     any other line is sent as a raw AT command
  quit                      exit`)
}

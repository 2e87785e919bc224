/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nabbar/carbon/connector"
	"github.com/nabbar/carbon/vep"
)

// appPacketType is the lone packet type this demo exchanges; a real
// embedder would define its own vocabulary under vep.ContainerApp.
const appPacketType vep.PacketType = 1

func newSendCmd() *cobra.Command {
	var (
		addr    string
		message string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Dial --addr, send --message, print the echoed reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, addr, message, timeout)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:4242", "address to dial")
	cmd.Flags().StringVar(&message, "message", "hello", "payload to send")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "round-trip deadline")
	return cmd
}

func runSend(cmd *cobra.Command, addr, message string, timeout time.Duration) error {
	ctx, cnl := context.WithTimeout(cmd.Context(), timeout)
	defer cnl()

	cn := connector.New(ctx, connector.Config{})
	defer func() { _ = cn.Close() }()

	out := vep.NewContainer(vep.ContainerApp)
	if err := out.InsertPacket(appPacketType, []byte(message)); err != nil {
		return err
	}

	reply, err := cn.IOSync(ctx, out, addr)
	if err != nil {
		return fmt.Errorf("carbon-echo: send: %w", err)
	}

	for _, p := range reply.Packets() {
		fmt.Fprintln(cmd.OutOrStdout(), string(p.Body()))
	}
	return nil
}

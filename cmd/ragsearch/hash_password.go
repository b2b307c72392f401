// Copyright 2025 The RAGSEARCH Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/munbongshin/RAGSEARCH/pkg/auth"
)

// HashPasswordCmd hashes a password for seeding accounts by hand.
type HashPasswordCmd struct {
	Cost int `help:"bcrypt cost." default:"10"`
}

func (c *HashPasswordCmd) Run() error {
	password, err := readPassword()
	if err != nil {
		return err
	}

	hash, err := auth.NewHasher(c.Cost).Hash(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

// readPassword reads without echo on a terminal and falls back to plain
// stdin when piped.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

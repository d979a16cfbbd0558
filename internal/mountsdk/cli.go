// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mountsdk

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// LoginMode selects when a build command drops into an interactive shell
// instead of running straight through.
type LoginMode string

const (
	LoginNever     LoginMode = ""
	LoginBefore    LoginMode = "before"
	LoginAfter     LoginMode = "after"
	LoginAfterFail LoginMode = "after-fail"
)

func parseLoginMode(value string) (LoginMode, error) {
	mode := LoginMode(value)
	switch mode {
	case LoginNever, LoginBefore, LoginAfter, LoginAfterFail:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid login mode: got %q; want one of %q, %q, or %q",
			value, LoginBefore, LoginAfter, LoginAfterFail)
	}
}

var flagSDK = &cli.StringSliceFlag{
	Name:     "sdk",
	Required: true,
}

var flagOverlay = &cli.StringSliceFlag{
	Name:     "overlay",
	Required: true,
	Usage: "<inside path>=<squashfs file | directory | tar.*>: " +
		"mounts the file or directory at the specified path. " +
		"Inside path must be absolute.",
}

var flagLogin = &cli.StringFlag{
	Name: "login",
	Usage: "--login=before|after|after-fail logs in to the SDK before " +
		"installing deps, after building, or after failing to build " +
		"respectively.",
	Action: func(c *cli.Context, value string) error {
		_, err := parseLoginMode(value)
		return err
	},
}

// CLIFlags are the flags GetMountConfigFromCLI reads.
var CLIFlags = []cli.Flag{
	flagSDK,
	flagOverlay,
	flagLogin,
}

// GetMountConfigFromCLI builds a Config from CLIFlags' values.
func GetMountConfigFromCLI(c *cli.Context) (*Config, error) {
	cfg := Config{}

	for _, sdk := range c.StringSlice(flagSDK.Name) {
		cfg.Overlays = append(cfg.Overlays, MappedDualPath{HostPath: sdk, SDKPath: "/"})
	}

	for _, spec := range c.StringSlice(flagOverlay.Name) {
		inside, outside, ok := splitOverlaySpec(spec)
		if !ok {
			return nil, fmt.Errorf("invalid overlay spec: %s", spec)
		}
		cfg.Overlays = append(cfg.Overlays, MappedDualPath{HostPath: outside, SDKPath: inside})
	}

	mode, err := parseLoginMode(c.String(flagLogin.Name))
	if err != nil {
		return nil, err
	}
	cfg.LoginMode = mode

	return &cfg, nil
}

func splitOverlaySpec(spec string) (inside, outside string, ok bool) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == '=' {
			return spec[:i], spec[i+1:], true
		}
	}
	return "", "", false
}

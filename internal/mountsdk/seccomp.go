// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mountsdk

import (
	"fmt"

	seccomp "github.com/elastic/go-seccomp-bpf"
)

// deniedSyscalls blocks the operations a build running inside the
// container root has no legitimate reason to perform: they either affect
// state outside the container's own namespaces (the real clock, loaded
// kernel modules, the real NIC) or are common privilege-escalation and
// sandbox-escape primitives. Everything else is left alone, since a build
// toolchain's syscall surface is otherwise too broad to allowlist.
var deniedSyscalls = []string{
	"ptrace",
	"kexec_load",
	"kexec_file_load",
	"init_module",
	"finit_module",
	"delete_module",
	"reboot",
	"swapon",
	"swapoff",
	"acct",
	"iopl",
	"ioperm",
	"add_key",
	"request_key",
	"keyctl",
	"bpf",
	"perf_event_open",
	"settimeofday",
	"clock_settime",
	"pivot_root",
	"quotactl",
}

// InstallSeccompFilter installs a deny-list seccomp-bpf filter: the
// syscalls in deniedSyscalls return EPERM, everything else is allowed. It
// must be called after all mount/namespace setup is done and right
// before running the target command, since mount(2) itself is still
// permitted (container assembly needs it) but pivot_root is not, and
// once installed the filter can never be relaxed again for this process.
func InstallSeccompFilter() error {
	filter := seccomp.Filter{
		NoNewPrivs: true,
		Flag:       seccomp.FilterFlagTSync,
		Policy: seccomp.Policy{
			DefaultAction: seccomp.ActionAllow,
			Syscalls: []seccomp.SyscallGroup{
				{
					Action: seccomp.ActionErrno,
					Names:  deniedSyscalls,
				},
			},
		},
	}
	if err := seccomp.LoadFilter(filter); err != nil {
		return fmt.Errorf("installing seccomp filter: %w", err)
	}
	return nil
}

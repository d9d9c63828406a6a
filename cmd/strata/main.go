// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"github.com/strataseq/strata"
)

func main() {
	strata.Main()
}

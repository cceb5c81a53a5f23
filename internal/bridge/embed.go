package bridge

import _ "embed"

// hostSource is the Python program run with "python3 -u -c".
//
//go:embed python/host.py
var hostSource string

// interfaceSource is the bundled capability module.
//
//go:embed python/miio_interface.py
var interfaceSource string

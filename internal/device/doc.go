// Package device provides Miio device sessions and the registry that keeps them.
//
// A Session is one instantiated device: the type name, address and token
// given at creation, the opaque handle the device library produced and the
// method table it reported. Sessions are immutable values; the library is
// reached through the Library interface, which *bridge.Interpreter implements.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                         device package                        │
//	│                                                               │
//	│  ┌────────────────┐   ┌────────────────┐   ┌───────────────┐  │
//	│  │    Registry    │──▶│   Repository   │   │    Persist    │  │
//	│  │ (registry.go)  │   │(repository.go) │   │ (persist.go)  │  │
//	│  │ • named records│   │ • miio_devices │   │ • JSON files  │  │
//	│  │ • cache        │   │ • SQLite       │   │ • export/imp. │  │
//	│  └───────┬────────┘   └────────────────┘   └───────────────┘  │
//	│          │ Create / Invoke / ListTypes (session.go)           │
//	└──────────┼────────────────────────────────────────────────────┘
//	           ▼
//	┌──────────────────────┐
//	│  bridge.Interpreter  │  python host running the capability module
//	└──────────────────────┘
//
// # Errors
//
// Library failures wrap ErrCreation or ErrInvocation. Persisted data that
// cannot be decoded wraps ErrParse; filesystem failures wrap ErrIO.
//
// # Usage
//
//	s, err := device.Create(ctx, interp, "192.168.1.20", token, "Yeelight")
//	if err != nil {
//	    return err
//	}
//	out, err := s.Invoke(ctx, interp, "toggle", nil)
//	// out == "['ok']"
//
//	if err := device.WriteFile(s, "lamp.json"); err != nil {
//	    return err
//	}
package device

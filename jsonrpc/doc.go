// Package jsonrpc implements a bidirectional JSON-RPC 2.0 peer over a line
// framed duplex stream, such as a child process's stdin and stdout.
//
// Both sides may issue requests. Inbound requests are dispatched to handlers
// registered on a Router, each on its own goroutine; outbound requests are
// correlated with their replies by id. A peer may abort one of its requests
// with the $/cancelRequest notification, which cancels the handler's context.
//
// Example:
//
//	conn := jsonrpc.NewConn(os.Stdin, os.Stdout,
//		jsonrpc.UseLogger(observability.NewNullLogger()),
//	)
//
//	_ = conn.RegisterFunc("Ping", func(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
//		return "pong", nil
//	})
//
//	_ = conn.RegisterFunc("Echo", func(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
//		var s string
//		if err := params.Decode(0, &s); err != nil {
//			return nil, err
//		}
//
//		// Ask the peer something while handling the request.
//		var upper string
//		if err := conn.Call(ctx, "ToUpper", &upper, s); err != nil {
//			return nil, err
//		}
//		return upper, nil
//	})
//
//	if err := conn.Run(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
// A request {"jsonrpc":"2.0","method":"Ping","id":7,"params":[]} is then
// answered with the line {"jsonrpc":"2.0","result":"pong","id":7}.
package jsonrpc

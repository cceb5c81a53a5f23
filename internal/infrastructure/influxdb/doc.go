// Package influxdb records device invocation metrics in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Two measurements are
// written:
//   - miio_invocation: one point per device method call, tagged with
//     device_id, device_type and method, fields duration_ms and success
//   - miio_bridge: periodic snapshots of the interpreter host process
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	registry.SetMetrics(client)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Asynchronous write failures are delivered to the
// callback set with SetOnError.
package influxdb

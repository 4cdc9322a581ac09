// Package httpclient issues the load test's HTTP requests.
//
// An [Executor] performs exactly one request per call and never retries. It
// times the request from just before dispatch, connection setup included,
// until the response body has been fully drained, then folds the result into
// a [metrics.Outcome]:
//
//	outcome := exec.Execute(ctx, httpclient.Request{
//		Class:  metrics.ClassLight,
//		URL:    "http://localhost:8080/api/light",
//		UserID: userID,
//	})
//
// Transport failures, timeouts and body read errors become network_error
// outcomes with a reason category; Execute has no error return.
//
// # HTTP Client
//
// [NewClient] creates a client with keep-alive connection pooling sized for
// the number of virtual users:
//
//	client := httpclient.NewClient(10*time.Second, concurrency)
//
// [CheckHealth] probes liveness URLs concurrently before traffic starts.
package httpclient

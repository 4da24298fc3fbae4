package driver

// Full method names of the cluster's query service. Request and response
// bodies are opaque to the driver core; encoding belongs to the caller and
// the server.
const (
	MethodExecute = "/pairdb.v1.Query/Execute"
	MethodPrepare = "/pairdb.v1.Query/Prepare"
	MethodPing    = "/pairdb.v1.Admin/Ping"
)

// Statement is a unit of work to run against the cluster: a gRPC method and
// a pre-marshaled request body.
type Statement struct {
	Method  string
	Payload []byte
}

// Request is the handle for one in-flight statement. It carries the wire
// payload, the outcome future handed back to the caller, and a scratch
// slice the load balancing policy fills with the query plan for this
// attempt. A request is owned by the session goroutine from dequeue until
// it is accepted by exactly one worker or failed synchronously.
type Request struct {
	method  string
	payload []byte
	future  *Future
	hosts   []Host // query plan scratch, written by the policy
}

func newRequest(method string, payload []byte) *Request {
	return &Request{
		method:  method,
		payload: payload,
		future:  newFuture(),
	}
}

// Method returns the request's full gRPC method name.
func (r *Request) Method() string { return r.method }

// Payload returns the request's pre-marshaled body.
func (r *Request) Payload() []byte { return r.payload }

// Plan returns the candidate hosts for this attempt, in policy order.
// Valid only after the session has dispatched the request.
func (r *Request) Plan() []Host { return r.hosts }

// Future returns the request's outcome.
func (r *Request) Future() *Future { return r.future }

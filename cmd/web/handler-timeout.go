package main

import (
	"net/http"
	"time"
)

// timeoutMargin leaves the timeout handler time to answer before the server's write deadline closes the connection.
const timeoutMargin = 500 * time.Millisecond

// timeoutBody is shown instead of the playground. It stands alone so that htmx can swap it in as well.
const timeoutBody = `<section class="task" data-phase="timeout">
<h2>The planning session did not answer in time</h2>
<p>Your run keeps going in the background. <a href="/">Reload the planning session</a></p>
</section>
`

// timeoutHandler responds with 503 Service Unavailable when h misses the deadline. The event stream is not wrapped
// because it is meant to stay open.
func timeoutHandler(h http.Handler, timeout time.Duration) http.Handler {
	return http.TimeoutHandler(h, timeout-timeoutMargin, timeoutBody)
}

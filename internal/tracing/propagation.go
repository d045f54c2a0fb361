// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/propagation"
)

// W3CPropagator returns a TextMapPropagator that implements W3C Trace Context.
func W3CPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// InjectHTTPHeaders writes traceparent/baggage headers for the span in ctx,
// so the called API can join the trace.
func InjectHTTPHeaders(ctx context.Context, req *http.Request) {
	W3CPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

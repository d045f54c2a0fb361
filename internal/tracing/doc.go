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

/*
Package tracing provides OpenTelemetry spans and correlation IDs for outbound
API calls.

# Spans

Sessions and OAuth2 flows take a trace.TracerProvider and create three span
kinds:

  - apiclient.request: one per Session.Do call, covering auth, admission,
    retries and the final response
  - apiclient.attempt: one per transport attempt inside a request
  - apiclient.oauth2.refresh: one per token endpoint exchange

With no provider configured the global otel provider is used, which is a
no-op unless the application installs one.

# Correlation IDs

Every request carries an X-Correlation-ID header. A caller can pin the ID
with ToContext; otherwise one is generated per request and logged with each
attempt:

	ctx = tracing.ToContext(ctx, tracing.NewCorrelationID())
	resp, err := session.Get(ctx, "/users")

# Provider

NewProvider builds an SDK provider for the CLI. The "stdout" exporter
pretty-prints finished spans, which is useful with --trace when debugging a
misbehaving API.
*/
package tracing

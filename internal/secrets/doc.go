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
Package secrets resolves secret references in profile credentials.

A reference names a provider scheme and a key:

	env:GITHUB_CLIENT_SECRET     environment variable
	file:/run/secrets/api-key    file contents, trailing whitespace trimmed
	keychain:github-client       system keychain entry under the service name

Values without a registered scheme are returned unchanged, so plain
credentials and URLs pass through untouched. Errors name the reference but
never the resolved value.
*/
package secrets

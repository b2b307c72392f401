// Copyright 2025 The RAGSEARCH Authors
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

package httpclient

import (
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// ParseOpenAIHeaders extracts rate limit info from OpenAI-compatible API
// headers (used by the local chat-completions backend).
func ParseOpenAIHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{}

	if retryAfter := headers.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			info.RetryAfter = time.Duration(seconds) * time.Second
		}
	}

	resetHeaders := []string{
		"x-ratelimit-reset-tokens",
		"x-ratelimit-reset-requests",
	}
	for _, header := range resetHeaders {
		if resetStr := headers.Get(header); resetStr != "" {
			if resetTime, err := strconv.ParseInt(resetStr, 10, 64); err == nil {
				info.ResetTime = resetTime
				break
			}
		}
	}

	if remaining := headers.Get("x-ratelimit-remaining-requests"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			info.RequestsRemaining = n
		}
	}
	if remaining := headers.Get("x-ratelimit-remaining-tokens"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			info.TokensRemaining = n
		}
	}

	return info
}

// ParseGroqHeaders extracts rate limit info from Groq API headers.
// Groq is OpenAI-compatible on the header side.
func ParseGroqHeaders(headers http.Header) RateLimitInfo {
	return ParseOpenAIHeaders(headers)
}

// throttleHintRe matches wait hints like "Please try again in 1m2.5s",
// "try again in 45s" or "in 2m".
var throttleHintRe = regexp.MustCompile(`try again in (?:(\d+)m)?(?:([\d.]+)s)?`)

// ParseThrottleHint extracts the wait duration from a throttle message
// body. A half second of slack is added so the retry lands after the
// window actually resets. Returns 0 if no hint is present.
func ParseThrottleHint(body string) time.Duration {
	m := throttleHintRe.FindStringSubmatch(body)
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0
	}

	var total float64
	if m[1] != "" {
		minutes, err := strconv.Atoi(m[1])
		if err != nil {
			return 0
		}
		total += float64(minutes) * 60
	}
	if m[2] != "" {
		seconds, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return 0
		}
		total += seconds
	}

	return time.Duration((total + 0.5) * float64(time.Second))
}

// Copyright 2025 Poiesic Systems
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


// Package stream consumes request messages from a consumer-group message
// log and publishes the responses back onto the same channel.
//
// A Listener runs one goroutine per channel. Each goroutine owns its
// read-handle-publish-ack cycle; read errors back off exponentially and the
// loop keeps going. Response-typed entries are acknowledged without being
// handled so the listener never answers its own output.
package stream

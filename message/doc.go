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


// Package message defines the envelope exchanged over the stream channels
// and the HTTP mirror, plus the typed payload of every message type.
//
// Requests are decoded into the sealed Request union with Decode, which
// validates the payload before any handler runs. Responses are built with
// New and NewError and always carry the session id of their request.
package message

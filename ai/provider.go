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


package ai

import "errors"

// compositeProvider pairs independently constructed services.
type compositeProvider struct {
	embedder  Embedder
	completer Completer
	closers   []func() error
}

// Compose builds an AIProvider from separately configured services.
// Closers run in order on Close; their errors are joined.
func Compose(embedder Embedder, completer Completer, closers ...func() error) AIProvider {
	return &compositeProvider{
		embedder:  embedder,
		completer: completer,
		closers:   closers,
	}
}

func (p *compositeProvider) Embedder() Embedder {
	return p.embedder
}

func (p *compositeProvider) Completer() Completer {
	return p.completer
}

func (p *compositeProvider) Close() error {
	var errs []error
	for _, closeFn := range p.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

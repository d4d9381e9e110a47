// Copyright 2025 The Geovisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package geoapi

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrUpstream reports a non-2xx answer from the Geolocation API.
type ErrUpstream struct {
	Status string
}

func (e *ErrUpstream) Error() string {
	return fmt.Sprintf("Google API error: %s", e.Status)
}

// Resolver performs geolocation lookups against the Google
// Geolocation API.
type Resolver struct {
	client *resty.Client
	url    string
	key    string
}

func NewResolver(cfg GoogleConfig) *Resolver {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &Resolver{
		client: client,
		url:    cfg.URL,
		key:    cfg.APIKey,
	}
}

// Resolve forwards the request upstream and returns the resolved
// location.  A non-2xx upstream answer is returned as *ErrUpstream.
func (r *Resolver) Resolve(ctx context.Context, req *GeoRequest) (Location, error) {
	var geo googleResponse

	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParam("key", r.key).
		SetBody(req).
		SetResult(&geo).
		Post(r.url)
	if err != nil {
		return Location{}, err
	}
	if resp.IsError() {
		return Location{}, &ErrUpstream{Status: resp.Status()}
	}

	return Location{Lat: geo.Location.Lat, Lon: geo.Location.Lng}, nil
}

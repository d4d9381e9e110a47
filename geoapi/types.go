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

// GeoRequest is the request payload for a geolocation lookup.  It is
// forwarded verbatim to the Google Geolocation API.
type GeoRequest struct {
	ConsiderIP       bool              `json:"considerIp"`
	WifiAccessPoints []WifiAccessPoint `json:"wifiAccessPoints"`
}

// WifiAccessPoint describes one observed access point.
type WifiAccessPoint struct {
	MacAddress     string `json:"macAddress"`
	SignalStrength int    `json:"signalStrength"`
}

// Location is the response payload, a resolved position.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// googleResponse is the shape of a successful upstream answer.
type googleResponse struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

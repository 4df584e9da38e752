/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import "fmt"

// FeePolicy decides which relay-side fees are passed through to the user.
// The operator fee is always charged.
type FeePolicy int

const (
	FeePolicyOperatorPaysAll FeePolicy = iota + 1
	FeePolicyUserPaysSwap
	FeePolicyUserPaysPrivacy
	FeePolicyUserPaysAll
)

func (p FeePolicy) String() string {
	switch p {
	case FeePolicyOperatorPaysAll:
		return "operator_pays_all"
	case FeePolicyUserPaysSwap:
		return "user_pays_swap"
	case FeePolicyUserPaysPrivacy:
		return "user_pays_privacy"
	case FeePolicyUserPaysAll:
		return "user_pays_all"
	default:
		return fmt.Sprintf("fee_policy(%d)", int(p))
	}
}

// ParseFeePolicy is the inverse of FeePolicy.String.
func ParseFeePolicy(s string) (FeePolicy, error) {
	switch s {
	case "operator_pays_all":
		return FeePolicyOperatorPaysAll, nil
	case "user_pays_swap":
		return FeePolicyUserPaysSwap, nil
	case "user_pays_privacy":
		return FeePolicyUserPaysPrivacy, nil
	case "user_pays_all":
		return FeePolicyUserPaysAll, nil
	default:
		return 0, fmt.Errorf("unknown fee policy %q", s)
	}
}

// FeeComponent is fixed + amount * Bps / 10_000.
type FeeComponent struct {
	Fixed int64
	Bps   int64
}

type FeeConfig struct {
	Policy   FeePolicy
	Privacy  FeeComponent
	Swap     FeeComponent
	Operator FeeComponent
}

// FeeBreakdown is expressed in the deposit currency's smallest unit.
type FeeBreakdown struct {
	PrivacyFee  int64
	SwapFee     int64
	OperatorFee int64
	Total       int64
}

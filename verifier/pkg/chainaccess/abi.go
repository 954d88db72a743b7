// Package chainaccess talks to the LayerZero contracts over go-ethereum:
// it reads PacketSent and DVNFeePaid logs, decodes assignJob call data,
// reads verified state from the receive library and submits verifications.
package chainaccess

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const endpointV2ABIJSON = `[
  {"type":"event","name":"PacketSent","anonymous":false,"inputs":[
    {"name":"encodedPayload","type":"bytes","indexed":false},
    {"name":"options","type":"bytes","indexed":false},
    {"name":"sendLibrary","type":"address","indexed":false}]}
]`

const sendLibraryABIJSON = `[
  {"type":"event","name":"DVNFeePaid","anonymous":false,"inputs":[
    {"name":"requiredDVNs","type":"address[]","indexed":false},
    {"name":"optionalDVNs","type":"address[]","indexed":false},
    {"name":"fees","type":"uint256[]","indexed":false}]}
]`

const dvnABIJSON = `[
  {"type":"function","name":"assignJob","stateMutability":"payable","inputs":[
    {"name":"_param","type":"tuple","components":[
      {"name":"dstEid","type":"uint32"},
      {"name":"packetHeader","type":"bytes"},
      {"name":"payloadHash","type":"bytes32"},
      {"name":"confirmations","type":"uint64"},
      {"name":"sender","type":"address"}]},
    {"name":"_options","type":"bytes"}],
   "outputs":[{"name":"fee","type":"uint256"}]}
]`

const receiveLibraryABIJSON = `[
  {"type":"function","name":"verify","stateMutability":"nonpayable","inputs":[
    {"name":"_packetHeader","type":"bytes"},
    {"name":"_payloadHash","type":"bytes32"},
    {"name":"_confirmations","type":"uint64"}],
   "outputs":[]},
  {"type":"function","name":"hashLookup","stateMutability":"view","inputs":[
    {"name":"headerHash","type":"bytes32"},
    {"name":"payloadHash","type":"bytes32"},
    {"name":"dvn","type":"address"}],
   "outputs":[
    {"name":"submitted","type":"bool"},
    {"name":"confirmations","type":"uint64"}]}
]`

var (
	EndpointV2ABI     = mustParseABI(endpointV2ABIJSON)
	SendLibraryABI    = mustParseABI(sendLibraryABIJSON)
	DVNABI            = mustParseABI(dvnABIJSON)
	ReceiveLibraryABI = mustParseABI(receiveLibraryABIJSON)
)

var (
	packetSentEvent = EndpointV2ABI.Events["PacketSent"]
	dvnFeePaidEvent = SendLibraryABI.Events["DVNFeePaid"]
	assignJobMethod = DVNABI.Methods["assignJob"]
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Copyright 2025 Edgeo SCADA
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

package bacnet

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"go.uber.org/atomic"

	"github.com/edgeo-scada/bacnet-device/bacnet/internal/transport"
)

// ConfirmedRequestHandler handles a confirmed service request. src is the
// requester's address, invokeID identifies the request for the matching
// response, service is the confirmed service choice and data is the
// service's raw (undecoded) parameter bytes.
type ConfirmedRequestHandler func(src *net.UDPAddr, invokeID uint8, service ConfirmedServiceChoice, data []byte)

// UnconfirmedRequestHandler handles an unconfirmed service request.
type UnconfirmedRequestHandler func(src *net.UDPAddr, service UnconfirmedServiceChoice, data []byte)

// Server listens for BACnet/IP requests and dispatches them to registered
// per-service handlers. It owns the transport and the receive loop; it does
// not know how to interpret a service's parameters, only how to route the
// envelope. Request decoding and response content are the caller's
// responsibility (see the device package's service glue).
type Server struct {
	transport *transport.UDPTransport
	metrics   *Metrics
	logger    *slog.Logger

	mu                sync.RWMutex
	confirmedHandlers map[ConfirmedServiceChoice]ConfirmedRequestHandler
	unconfirmed       map[UnconfirmedServiceChoice]UnconfirmedRequestHandler
	unhandledConfirmed ConfirmedRequestHandler

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a Server bound to localAddr (host:port, or ":47808" to
// listen on all interfaces on the default port).
func NewServer(localAddr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		transport:         transport.NewUDPTransport(localAddr),
		metrics:           NewMetrics(),
		logger:            logger,
		confirmedHandlers: make(map[ConfirmedServiceChoice]ConfirmedRequestHandler),
		unconfirmed:       make(map[UnconfirmedServiceChoice]UnconfirmedRequestHandler),
	}
}

// Metrics returns the server's metrics instance.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// SetBroadcastAddress directs Who-Is/I-Am and other broadcast traffic at
// broadcastAddr (typically the configured subnet's directed broadcast
// address) instead of the limited broadcast address. A nil broadcastAddr
// reverts to the limited broadcast address.
func (s *Server) SetBroadcastAddress(broadcastAddr net.IP) {
	s.transport.SetBroadcastAddress(broadcastAddr)
}

// OnConfirmedService registers the handler invoked for a confirmed service
// choice. Registering the same choice twice replaces the handler.
func (s *Server) OnConfirmedService(service ConfirmedServiceChoice, h ConfirmedRequestHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmedHandlers[service] = h
}

// OnUnconfirmedService registers the handler invoked for an unconfirmed
// service choice.
func (s *Server) OnUnconfirmedService(service UnconfirmedServiceChoice, h UnconfirmedRequestHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unconfirmed[service] = h
}

// OnUnhandledConfirmedService registers the fallback invoked for a confirmed
// service choice with no specific handler registered. If unset, unhandled
// confirmed requests are rejected with RejectReasonUnrecognizedService.
func (s *Server) OnUnhandledConfirmedService(h ConfirmedRequestHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unhandledConfirmed = h
}

// ListenAndServe opens the transport and runs the receive loop until ctx is
// canceled or Close is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.transport.Open(ctx); err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	s.running.Store(true)

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.receiveLoop(loopCtx)

	<-loopCtx.Done()
	s.wg.Wait()
	return nil
}

// Close stops the receive loop and closes the transport.
func (s *Server) Close() error {
	s.running.Store(false)
	if s.cancel != nil {
		s.cancel()
	}
	return s.transport.Close()
}

func (s *Server) receiveLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, addr, err := s.transport.Receive(ctx)
		if err != nil {
			if s.transport.IsClosed() || ctx.Err() != nil {
				return
			}
			// Read deadline expiring is the normal poll cadence, not a
			// transport failure; anything else is logged and the loop
			// continues serving other requests.
			if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
				s.logger.Debug("receive failed", "error", err)
			}
			continue
		}

		s.metrics.BytesReceived.Add(int64(len(data)))
		s.handlePacket(addr, data)
	}
}

func (s *Server) handlePacket(addr *net.UDPAddr, data []byte) {
	bvlc, err := DecodeBVLC(data)
	if err != nil {
		s.metrics.RequestsMalformed.Inc()
		s.logger.Debug("discarding malformed BVLC header", "addr", addr, "error", err)
		return
	}
	if len(data) < 4 {
		s.metrics.RequestsMalformed.Inc()
		return
	}

	switch bvlc.Function {
	case BVLCOriginalUnicastNPDU, BVLCOriginalBroadcastNPDU, BVLCForwardedNPDU:
	default:
		// BDT/FDT management functions are not implemented by this server.
		s.logger.Debug("ignoring unsupported BVLC function", "function", bvlc.Function)
		return
	}

	npdu, consumed, err := DecodeNPDU(data[4:])
	if err != nil {
		s.metrics.RequestsMalformed.Inc()
		s.logger.Debug("discarding malformed NPDU", "addr", addr, "error", err)
		return
	}
	if npdu.Control&NPDUControlNetworkLayerMessage != 0 {
		// Network layer messages (Who-Is-Router-To-Network and friends) are
		// out of scope: this server never routes between networks.
		return
	}

	apduData := data[4+consumed:]
	apdu, err := DecodeAPDU(apduData)
	if err != nil {
		s.metrics.RequestsMalformed.Inc()
		s.logger.Debug("discarding malformed APDU", "addr", addr, "error", err)
		return
	}

	switch apdu.Type {
	case PDUTypeConfirmedRequest:
		s.dispatchConfirmed(addr, apdu)
	case PDUTypeUnconfirmedRequest:
		s.dispatchUnconfirmed(addr, apdu)
	default:
		// Ack/Error/Reject/Abort PDUs addressed to us would only occur if
		// this server had sent a confirmed request of its own, which it
		// never does.
		s.logger.Debug("ignoring unexpected PDU type", "type", apdu.Type)
	}
}

func (s *Server) dispatchConfirmed(addr *net.UDPAddr, apdu *APDU) {
	service := ConfirmedServiceChoice(apdu.Service)

	s.mu.RLock()
	handler, ok := s.confirmedHandlers[service]
	fallback := s.unhandledConfirmed
	s.mu.RUnlock()

	if !ok {
		if fallback != nil {
			s.metrics.RequestsDeclined.Inc()
			fallback(addr, apdu.InvokeID, service, apdu.Data)
			return
		}
		s.metrics.RequestsDeclined.Inc()
		s.sendReject(addr, apdu.InvokeID, RejectReasonUnrecognizedService)
		return
	}

	s.metrics.RequestsServed.Inc()
	handler(addr, apdu.InvokeID, service, apdu.Data)
}

func (s *Server) dispatchUnconfirmed(addr *net.UDPAddr, apdu *APDU) {
	service := UnconfirmedServiceChoice(apdu.Service)

	s.mu.RLock()
	handler, ok := s.unconfirmed[service]
	s.mu.RUnlock()

	if !ok {
		// Unconfirmed requests never get a reply of any kind, even when
		// unsupported.
		return
	}

	s.metrics.RequestsServed.Inc()
	handler(addr, service, apdu.Data)
}

func (s *Server) send(addr *net.UDPAddr, apdu []byte) error {
	npdu := EncodeNPDU(false, NPDUControlPriorityNormal)
	bvlc := EncodeBVLC(BVLCOriginalUnicastNPDU, len(npdu)+len(apdu))
	packet := append(append(bvlc, npdu...), apdu...)

	ctx, cancel := context.WithTimeout(context.Background(), s.transport.WriteTimeout())
	defer cancel()

	if err := s.transport.Send(ctx, addr, packet); err != nil {
		return err
	}
	s.metrics.BytesSent.Add(int64(len(packet)))
	return nil
}

func (s *Server) broadcast(port int, apdu []byte) error {
	npdu := EncodeNPDU(false, NPDUControlPriorityNormal)
	bvlc := EncodeBVLC(BVLCOriginalBroadcastNPDU, len(npdu)+len(apdu))
	packet := append(append(bvlc, npdu...), apdu...)

	ctx, cancel := context.WithTimeout(context.Background(), s.transport.WriteTimeout())
	defer cancel()

	if err := s.transport.Broadcast(ctx, port, packet); err != nil {
		return err
	}
	s.metrics.BytesSent.Add(int64(len(packet)))
	return nil
}

// SimpleAckResponse sends a Simple-ACK for a confirmed request, used by
// WriteProperty and SubscribeCOV on success.
func (s *Server) SimpleAckResponse(addr *net.UDPAddr, invokeID uint8, service ConfirmedServiceChoice) error {
	apdu := []byte{byte(PDUTypeSimpleAck), invokeID, byte(service)}
	return s.send(addr, apdu)
}

// ComplexAckResponse sends a Complex-ACK carrying service-specific data, used
// by ReadProperty and ReadPropertyMultiple responses.
func (s *Server) ComplexAckResponse(addr *net.UDPAddr, invokeID uint8, service ConfirmedServiceChoice, data []byte) error {
	buf := make([]byte, 0, 3+len(data))
	buf = append(buf, byte(PDUTypeComplexAck), invokeID, byte(service))
	buf = append(buf, data...)
	return s.send(addr, buf)
}

// ReadPropertyResponse sends the Complex-ACK for a ReadProperty request.
func (s *Server) ReadPropertyResponse(addr *net.UDPAddr, invokeID uint8, data []byte) error {
	s.metrics.ReadPropertyServed.Inc()
	return s.ComplexAckResponse(addr, invokeID, ServiceReadProperty, data)
}

// ReadPropertyMultipleResponse sends the Complex-ACK for a
// ReadPropertyMultiple request.
func (s *Server) ReadPropertyMultipleResponse(addr *net.UDPAddr, invokeID uint8, data []byte) error {
	s.metrics.ReadPropertyMultipleServed.Inc()
	return s.ComplexAckResponse(addr, invokeID, ServiceReadPropertyMultiple, data)
}

// WritePropertyAck sends the Simple-ACK for a successful WriteProperty.
func (s *Server) WritePropertyAck(addr *net.UDPAddr, invokeID uint8) error {
	s.metrics.WritePropertyServed.Inc()
	return s.SimpleAckResponse(addr, invokeID, ServiceWriteProperty)
}

// ErrorResponse sends an Error-PDU for a confirmed request that failed.
func (s *Server) ErrorResponse(addr *net.UDPAddr, invokeID uint8, service ConfirmedServiceChoice, bacErr *BACnetError) error {
	s.metrics.ErrorsSent.Inc()
	data := EncodeEnumeratedTag(uint32(bacErr.Class))
	data = append(data, EncodeEnumeratedTag(uint32(bacErr.Code))...)
	buf := make([]byte, 0, 3+len(data))
	buf = append(buf, byte(PDUTypeError), invokeID, byte(service))
	buf = append(buf, data...)
	return s.send(addr, buf)
}

func (s *Server) sendReject(addr *net.UDPAddr, invokeID uint8, reason RejectReason) error {
	apdu := []byte{byte(PDUTypeReject), invokeID, byte(reason)}
	return s.send(addr, apdu)
}

// IAmResponse broadcasts an I-Am in reply to a Who-Is, on the device's own
// listening port.
func (s *Server) IAmResponse(port int, data []byte) error {
	apdu := EncodeUnconfirmedRequest(ServiceIAm, data)
	s.metrics.IAmSent.Inc()
	return s.broadcast(port, apdu)
}

// UnconfirmedCOVNotification sends an Unconfirmed-COV-Notification.
func (s *Server) UnconfirmedCOVNotification(addr *net.UDPAddr, data []byte) error {
	apdu := EncodeUnconfirmedRequest(ServiceUnconfirmedCOVNotification, data)
	err := s.send(addr, apdu)
	if err != nil {
		s.metrics.COVNotificationsFailed.Inc()
		return err
	}
	s.metrics.COVNotificationsSent.Inc()
	return nil
}

// ConfirmedCOVNotification sends a Confirmed-COV-Notification and expects the
// subscriber to reply with a Simple-ACK; the caller tracks the invoke ID and
// any eventual (non-)response itself, this method only puts the request on
// the wire.
func (s *Server) ConfirmedCOVNotification(addr *net.UDPAddr, invokeID uint8, data []byte) error {
	apdu := EncodeConfirmedRequest(invokeID, ServiceConfirmedCOVNotification, data, 0, 5)
	err := s.send(addr, apdu)
	if err != nil {
		s.metrics.COVNotificationsFailed.Inc()
		return err
	}
	s.metrics.COVNotificationsSent.Inc()
	return nil
}

package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// dispatch runs each call on its own goroutine so the read loop keeps
// draining frames while tools execute. Calls without an id are executed
// but never answered.
func (s *Session) dispatch(calls []functionCall) {
	s.mu.Lock()
	if s.phase != phaseConnected {
		s.mu.Unlock()
		return
	}
	s.processing = true
	ctx := s.ctx
	for _, call := range calls {
		if call.ID != "" {
			s.pending[call.ID] = call.Name
		}
	}
	s.mu.Unlock()

	for _, call := range calls {
		s.logger.Info("Tool call received",
			zap.String("tool", call.Name),
			zap.String("callID", call.ID))
		go s.runTool(ctx, call)
	}
}

func (s *Session) runTool(ctx context.Context, call functionCall) {
	response := s.execute(ctx, call)
	if call.ID == "" {
		return
	}

	s.mu.Lock()
	_, pending := s.pending[call.ID]
	delete(s.pending, call.ID)
	conn := s.conn
	connected := s.phase == phaseConnected
	s.mu.Unlock()

	if !pending || !connected || conn == nil {
		s.logger.Debug("Dropping tool response for closed session",
			zap.String("tool", call.Name),
			zap.String("callID", call.ID))
		return
	}

	err := conn.WriteJSON(toolResponseFrame{
		ToolResponse: toolResponse{
			FunctionResponses: []functionResponse{{
				ID:       call.ID,
				Name:     call.Name,
				Response: response,
			}},
		},
	})
	if err == nil {
		return
	}
	if errors.Is(err, ErrTransportClosed) {
		s.fault(err)
		return
	}
	s.logger.Error("Failed to send tool response",
		zap.String("tool", call.Name),
		zap.String("callID", call.ID),
		zap.Error(err))
}

// execute validates and runs one call, always producing a response payload.
func (s *Session) execute(ctx context.Context, call functionCall) (response map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Tool handler panicked",
				zap.String("tool", call.Name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			response = errorPayload(fmt.Errorf("tool %s failed: %v", call.Name, r))
		}
	}()

	var args any
	if len(call.Args) > 0 {
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return errorPayload(fmt.Errorf("malformed arguments for %s: %w", call.Name, err))
		}
	}
	if err := s.registry.Validate(call.Name, args); err != nil {
		s.logger.Warn("Rejected tool call", zap.String("tool", call.Name), zap.Error(err))
		return errorPayload(err)
	}

	obj, _ := args.(map[string]any)
	if obj == nil {
		obj = map[string]any{}
	}
	result, err := s.handler.HandleToolCall(ctx, call.Name, obj)
	if err != nil {
		s.logger.Warn("Tool call failed", zap.String("tool", call.Name), zap.Error(err))
		return errorPayload(err)
	}
	return toPayload(result)
}

func errorPayload(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

// toPayload renders a handler result as a JSON object, falling back to a
// stringified output when it does not serialize to one.
func toPayload(result any) map[string]any {
	if data, err := json.Marshal(result); err == nil {
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err == nil && obj != nil {
			return obj
		}
	}
	return map[string]any{"output": fmt.Sprint(result)}
}

package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "people.v1.PeopleService"

// PeopleServiceServer is the server API. Every method takes and returns a
// google.protobuf.Struct whose fields mirror the JSON documents below.
type PeopleServiceServer interface {
	Extract(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitBackgroundJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetJobStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListJobs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SearchRecords(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportRecords(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(PeopleServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call structMethod) grpc.MethodHandler {
	info := &grpc.UnaryServerInfo{FullMethod: "/" + ServiceName + "/" + method}
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PeopleServiceServer), ctx, in)
		}
		i := *info
		i.Server = srv
		return interceptor(ctx, in, &i, func(ctx context.Context, req any) (any, error) {
			return call(srv.(PeopleServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

// PeopleServiceDesc describes the service for grpc.Server.RegisterService.
var PeopleServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PeopleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Extract", Handler: unaryHandler("Extract", PeopleServiceServer.Extract)},
		{MethodName: "SubmitBackgroundJob", Handler: unaryHandler("SubmitBackgroundJob", PeopleServiceServer.SubmitBackgroundJob)},
		{MethodName: "GetJobStatus", Handler: unaryHandler("GetJobStatus", PeopleServiceServer.GetJobStatus)},
		{MethodName: "ListJobs", Handler: unaryHandler("ListJobs", PeopleServiceServer.ListJobs)},
		{MethodName: "SearchRecords", Handler: unaryHandler("SearchRecords", PeopleServiceServer.SearchRecords)},
		{MethodName: "DeleteBatch", Handler: unaryHandler("DeleteBatch", PeopleServiceServer.DeleteBatch)},
		{MethodName: "ExportRecords", Handler: unaryHandler("ExportRecords", PeopleServiceServer.ExportRecords)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "people/v1/people.proto",
}

func RegisterPeopleServiceServer(s grpc.ServiceRegistrar, srv PeopleServiceServer) {
	s.RegisterService(&PeopleServiceDesc, srv)
}
